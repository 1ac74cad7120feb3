package models

import (
	"encoding/json"
	"time"
)

const (
	VisitTypePreview  = "preview"
	VisitTypeDownload = "download"
	VisitTypeShare    = "share"
)

// Values written over PII fields by anonymization.
const (
	AnonymizedIP    = "XXX.XXX.XXX.XXX"
	AnonymizedValue = "[ANONYMIZED]"
)

// DocumentVisit is one view of a generated or shared document.
type DocumentVisit struct {
	ID                 int64           `json:"id"`
	DocumentID         int64           `json:"document_id"`
	VisitType          string          `json:"visit_type"`
	IPAddress          *string         `json:"ip_address,omitempty"`
	UserAgent          *string         `json:"user_agent,omitempty"`
	Referrer           *string         `json:"referrer,omitempty"`
	BrowserName        string          `json:"browser_name"`
	OSName             string          `json:"os_name"`
	DeviceType         string          `json:"device_type"`
	Country            *string         `json:"country,omitempty"`
	City               *string         `json:"city,omitempty"`
	Latitude           *float64        `json:"latitude,omitempty"`
	Longitude          *float64        `json:"longitude,omitempty"`
	ReadingTimeSeconds int             `json:"reading_time_seconds"`
	Bounce             bool            `json:"bounce"`
	DeviceFingerprint  *string         `json:"device_fingerprint,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type DocumentVisitRequest struct {
	VisitType          string          `json:"visit_type" binding:"required,oneof=preview download share"`
	ReadingTimeSeconds int             `json:"reading_time_seconds" binding:"gte=0,lte=86400"`
	Bounce             bool            `json:"bounce"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

// VisitFilter bounds aggregation, export and anonymization queries.
type VisitFilter struct {
	UserID     int64
	DocumentID *int64
	Days       int
}
