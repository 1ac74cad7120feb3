package models

import (
	"encoding/json"
	"time"
)

type DashboardSummary struct {
	Overview      DashboardOverview `json:"overview"`
	TopDocuments  []TopDocument     `json:"top_documents"`
	TemplateUsage []TemplateUsage   `json:"template_usage"`
}

type DashboardOverview struct {
	TotalDocuments    int64   `json:"total_documents"`
	TotalVisits       int64   `json:"total_visits"`
	DocumentsToday    int64   `json:"documents_today"`
	VisitsToday       int64   `json:"visits_today"`
	VisitsYesterday   int64   `json:"visits_yesterday"`
	DocumentsThisWeek int64   `json:"documents_this_week"`
	VisitGrowth       float64 `json:"visit_growth"`
}

type TopDocument struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Visits int64  `json:"visits"`
}

type TemplateUsage struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	UsageCount int64  `json:"usage_count"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"visits"`
}

type VisitAnalytics struct {
	TotalVisits        int64            `json:"total_visits"`
	UniqueVisitors     int64            `json:"unique_visitors"`
	VisitTypes         map[string]int64 `json:"visit_types"`
	DeviceBreakdown    map[string]int64 `json:"device_breakdown"`
	BrowserBreakdown   map[string]int64 `json:"browser_breakdown"`
	CountryBreakdown   map[string]int64 `json:"country_breakdown"`
	DailyVisits        []DailyCount     `json:"daily_visits"`
	BounceRate         float64          `json:"bounce_rate"`
	AverageTimeReading float64          `json:"average_time_reading"`
}

const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

// CSVExportRow is the flat tabular form of one document visit.
type CSVExportRow struct {
	VisitID           int64   `json:"visit_id"`
	DocumentID        int64   `json:"document_id"`
	VisitType         string  `json:"visit_type"`
	Country           *string `json:"country"`
	City              *string `json:"city"`
	DeviceType        string  `json:"device_type"`
	BrowserName       string  `json:"browser_name"`
	OSName            string  `json:"os_name"`
	CreatedAt         string  `json:"created_at"`
	TimeReading       int     `json:"time_reading"`
	Bounce            bool    `json:"bounce"`
	DeviceFingerprint *string `json:"device_fingerprint"`
}

// JSONExportVisit is the nested form of one document visit.
type JSONExportVisit struct {
	VisitID     int64           `json:"visit_id"`
	DocumentID  int64           `json:"document_id"`
	VisitType   string          `json:"visit_type"`
	VisitorInfo VisitorInfo     `json:"visitor_info"`
	Engagement  Engagement      `json:"engagement"`
	CreatedAt   string          `json:"created_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

type VisitorInfo struct {
	Country           *string `json:"country"`
	City              *string `json:"city"`
	DeviceType        string  `json:"device_type"`
	Browser           string  `json:"browser"`
	OS                string  `json:"os"`
	DeviceFingerprint *string `json:"device_fingerprint"`
}

type Engagement struct {
	TimeReading int  `json:"time_reading"`
	Bounce      bool `json:"bounce"`
}

// ExportResult holds either the CSV-shaped or the JSON-shaped export, selected by Format.
type ExportResult struct {
	Format     string
	Rows       []CSVExportRow
	Visits     []JSONExportVisit
	ExportDate time.Time
	PeriodDays int
}

func (e ExportResult) TotalRecords() int {
	if e.Format == ExportFormatCSV {
		return len(e.Rows)
	}
	return len(e.Visits)
}

func (e ExportResult) MarshalJSON() ([]byte, error) {
	if e.Format == ExportFormatCSV {
		rows := e.Rows
		if rows == nil {
			rows = []CSVExportRow{}
		}
		return json.Marshal(struct {
			Format       string         `json:"format"`
			Data         []CSVExportRow `json:"data"`
			TotalRecords int            `json:"total_records"`
		}{e.Format, rows, len(rows)})
	}

	visits := e.Visits
	if visits == nil {
		visits = []JSONExportVisit{}
	}
	return json.Marshal(struct {
		Format       string            `json:"format"`
		ExportDate   string            `json:"export_date"`
		PeriodDays   int               `json:"period_days"`
		TotalRecords int               `json:"total_records"`
		Visits       []JSONExportVisit `json:"visits"`
	}{e.Format, e.ExportDate.UTC().Format(time.RFC3339), e.PeriodDays, len(visits), visits})
}

type RealtimeMetrics struct {
	Timestamp          time.Time        `json:"timestamp"`
	ActiveSessions     int64            `json:"active_sessions"`
	ConversionsPerMin  int64            `json:"conversions_per_minute"`
	PageViewsPerMin    int64            `json:"page_views_per_minute"`
	TopActiveTemplates []ActiveTemplate `json:"top_active_templates"`
	EventsThisMinute   map[string]int64 `json:"events_this_minute,omitempty"`
	ServedFromCache    bool             `json:"cached"`
}

type ActiveTemplate struct {
	TemplateID    int64 `json:"template_id"`
	ActiveViewers int64 `json:"active_viewers"`
}

type PageVisitAnalytics struct {
	TotalVisits    int64        `json:"total_visits"`
	UniqueVisitors int64        `json:"unique_visitors"`
	PopularPages   []PageCount  `json:"popular_pages"`
	DailyVisits    []DailyCount `json:"daily_visits"`
	PeriodDays     int          `json:"period_days"`
}

type PageCount struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
}
