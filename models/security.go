package models

import (
	"encoding/json"
	"time"
)

type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Rank orders threat levels; unknown levels rank lowest.
func (l ThreatLevel) Rank() int {
	switch l {
	case ThreatLow:
		return 1
	case ThreatMedium:
		return 2
	case ThreatHigh:
		return 3
	case ThreatCritical:
		return 4
	default:
		return 0
	}
}

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFalsePositive IncidentStatus = "false_positive"
)

func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentFalsePositive
}

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentFalsePositive:
		return true
	}
	return false
}

// PatternType is the closed set of threat pattern kinds the detector knows.
type PatternType string

const (
	PatternSQLInjection PatternType = "sql_injection"
	PatternXSS          PatternType = "xss"
)

// ThreatMatch is one detector hit against a request.
type ThreatMatch struct {
	PatternType PatternType `json:"pattern_type"`
	Severity    ThreatLevel `json:"severity"`
	Description string      `json:"description"`
	Pattern     string      `json:"pattern"`
}

type SecurityIncident struct {
	ID                    int64           `json:"id"`
	AlertID               string          `json:"alert_id"`
	ThreatLevel           ThreatLevel     `json:"threat_level"`
	AlertType             string          `json:"alert_type"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	AffectedUserID        *int64          `json:"affected_user_id,omitempty"`
	SourceIP              string          `json:"source_ip"`
	UserAgent             string          `json:"user_agent,omitempty"`
	AttackVector          string          `json:"attack_vector,omitempty"`
	AttackPattern         json.RawMessage `json:"attack_pattern,omitempty"`
	Evidence              json.RawMessage `json:"evidence,omitempty"`
	Status                IncidentStatus  `json:"status"`
	AssignedTo            *int64          `json:"assigned_to,omitempty"`
	InvestigationNotes    string          `json:"investigation_notes,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty"`
	ResponseTimeSeconds   *float64        `json:"response_time_seconds,omitempty"`
	ResolutionTimeSeconds *float64        `json:"resolution_time_seconds,omitempty"`
}

// SecurityAlert is returned to callers when an inspected request produced an incident.
type SecurityAlert struct {
	AlertID            string          `json:"alert_id"`
	ThreatLevel        ThreatLevel     `json:"threat_level"`
	AlertType          string          `json:"alert_type"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	AffectedUserID     *int64          `json:"affected_user_id,omitempty"`
	SourceIP           string          `json:"source_ip"`
	Timestamp          time.Time       `json:"timestamp"`
	AttackVector       string          `json:"attack_vector"`
	Matches            []ThreatMatch   `json:"matches"`
	Evidence           json.RawMessage `json:"evidence,omitempty"`
	RecommendedActions []string        `json:"recommended_actions"`
}

type BlockedIP struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type IncidentStatusRequest struct {
	Status     IncidentStatus `json:"status" binding:"required"`
	Notes      string         `json:"notes" binding:"max=2000"`
	AssignedTo *int64         `json:"assigned_to,omitempty"`
}

type BlockIPRequest struct {
	IP              string `json:"ip" binding:"required,ip"`
	Reason          string `json:"reason" binding:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" binding:"gte=0,lte=525600"`
}
