package models

import (
	"encoding/json"
	"time"
)

// TrackRequest is one inbound interaction submitted by the landing page client.
type TrackRequest struct {
	SessionID string       `json:"session_id" binding:"required"`
	EventType string       `json:"event_type" binding:"required"`
	EventData EventPayload `json:"event_data"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
}

// EventPayload is the union of the fields used by the four event kinds.
// Which fields are required depends on the event type.
type EventPayload struct {
	Page           string   `json:"page,omitempty" validate:"max=500"`
	TimeOnPage     float64  `json:"time_on_page,omitempty" validate:"gte=0,lte=86400"`
	TemplateID     *int64   `json:"template_id,omitempty" validate:"omitempty,gt=0"`
	Action         string   `json:"action,omitempty" validate:"max=50"`
	Duration       float64  `json:"duration,omitempty" validate:"gte=0,lte=86400"`
	FieldID        string   `json:"field_id,omitempty" validate:"max=100"`
	FormCompletion *float64 `json:"form_completion,omitempty" validate:"omitempty,gte=0,lte=1"`
	ResetForm      bool     `json:"reset_form,omitempty"`
	ScrollDepth    *float64 `json:"scroll_depth,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// TrackResult is the outward response of an interaction submission.
type TrackResult struct {
	Success             bool    `json:"success"`
	Error               string  `json:"error,omitempty"`
	EventTracked        bool    `json:"event_tracked"`
	Outcome             string  `json:"outcome,omitempty"`
	SessionQualityScore float64 `json:"session_quality_score,omitempty"`
}

// Rejection codes carried in TrackResult.Error.
const (
	ErrCodeRateLimited   = "rate_limit_exceeded"
	ErrCodeInvalidData   = "invalid_data"
	ErrCodeVisitNotFound = "visit_not_found"
)

// InteractionEvent is one row of the interaction event log in ClickHouse.
type InteractionEvent struct {
	EventID      string          `json:"eventId"`
	EventType    string          `json:"eventType"`
	SessionID    string          `json:"sessionId"`
	UserID       string          `json:"userId"`
	Timestamp    time.Time       `json:"timestamp"`
	PagePath     string          `json:"pagePath"`
	TemplateID   int64           `json:"templateId"`
	DurationMs   int64           `json:"durationMs"`
	QualityScore float64         `json:"qualityScore"`
	EventData    json.RawMessage `json:"eventData,omitempty"`
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}
