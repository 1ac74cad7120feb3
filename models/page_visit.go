package models

import (
	"encoding/json"
	"time"
)

// SimplePageVisit is a lightweight per-page-load record.
type SimplePageVisit struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"session_id"`
	UserID        *int64          `json:"user_id,omitempty"`
	PageURL       string          `json:"page_url"`
	PageTitle     string          `json:"page_title,omitempty"`
	Referrer      string          `json:"referrer,omitempty"`
	IPAddress     string          `json:"-"`
	UserAgent     string          `json:"-"`
	VisitDuration *int            `json:"visit_duration,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PageVisitRequest struct {
	SessionID     string          `json:"session_id" binding:"required,max=100"`
	PageURL       string          `json:"page_url" binding:"required,max=500"`
	PageTitle     string          `json:"page_title" binding:"max=200"`
	Referrer      string          `json:"referrer" binding:"max=500"`
	VisitDuration *int            `json:"visit_duration" binding:"omitempty,gte=0,lte=86400"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}
