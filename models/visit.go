package models

import "time"

// Event types accepted on the interaction endpoint.
const (
	EventPageView            = "page_view"
	EventTemplateInteraction = "template_interaction"
	EventFormInteraction     = "form_interaction"
	EventScroll              = "scroll"
)

// Bounce classifications stored on a VisitRecord.
const (
	BounceTypePending   = "pending"
	BounceTypeQuickExit = "quick_exit"
	BounceTypeShallow   = "shallow"
	BounceTypeEngaged   = "engaged"
)

// VisitRecord is the aggregate state of one landing-page browsing session.
type VisitRecord struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	UserID      *int64 `json:"user_id,omitempty"`
	LandingPage string `json:"landing_page,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	FirstInteractionAt *time.Time `json:"first_interaction_at,omitempty"`
	LastInteractionAt  *time.Time `json:"last_interaction_at,omitempty"`
	ActiveTimeSeconds  float64    `json:"active_time_seconds"`
	TimeOnPageSeconds  float64    `json:"time_on_page_seconds"`

	TemplatesViewedCount int                        `json:"templates_viewed_count"`
	ScrollDepth          float64                    `json:"scroll_depth"`
	FormCompletion       float64                    `json:"form_completion"`
	EngagementDepth      int                        `json:"engagement_depth"`
	LastInteractionField string                     `json:"last_interaction_field,omitempty"`
	PagesViewed          []PageViewEntry            `json:"pages_viewed"`
	TemplateInteractions []TemplateInteractionEntry `json:"template_interactions"`
	FormInteractions     []FormInteractionEntry     `json:"form_interactions"`

	Bounce             bool       `json:"bounce"`
	BounceType         string     `json:"bounce_type"`
	CreatedDocument    bool       `json:"created_document"`
	Registered         bool       `json:"registered"`
	DownloadedDocument bool       `json:"downloaded_document"`
	ConvertedToPaid    bool       `json:"converted_to_paid"`
	ConvertedAt        *time.Time `json:"converted_at,omitempty"`

	SessionQualityScore   float64 `json:"session_quality_score"`
	ConversionProbability float64 `json:"conversion_probability"`
}

type PageViewEntry struct {
	Page       string    `json:"page"`
	Timestamp  time.Time `json:"timestamp"`
	TimeOnPage float64   `json:"time_on_page"`
}

type TemplateInteractionEntry struct {
	TemplateID int64     `json:"template_id"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	Duration   float64   `json:"duration"`
}

type FormInteractionEntry struct {
	FieldID   string    `json:"field_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// VisitStart holds what is known about a session on its first page load.
type VisitStart struct {
	SessionID   string `json:"session_id"`
	UserID      *int64 `json:"user_id,omitempty"`
	LandingPage string `json:"landing_page"`
	Referrer    string `json:"referrer"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// Funnel milestones a session can reach.
const (
	ConversionCreatedDocument    = "created_document"
	ConversionRegistered         = "registered"
	ConversionDownloadedDocument = "downloaded_document"
	ConversionPaid               = "converted_to_paid"
)

type ConversionRequest struct {
	Kind   string `json:"kind" binding:"required,oneof=created_document registered downloaded_document converted_to_paid"`
	UserID *int64 `json:"user_id,omitempty"`
}
