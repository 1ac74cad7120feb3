package services

import (
	"math"
	"time"

	"github.com/LordMirex/mytypist-backend/models"
)

// Outcome reports what ApplyEvent did with an event.
type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeUnhandled Outcome = "unhandled"
)

// ApplyEvent folds one sanitized event into the visit. Unknown event types
// leave the record untouched and report OutcomeUnhandled.
func ApplyEvent(v *models.VisitRecord, eventType string, p models.EventPayload, at time.Time) Outcome {
	switch eventType {
	case models.EventPageView:
		applyPageView(v, p, at)
	case models.EventTemplateInteraction:
		applyTemplateInteraction(v, p, at)
	case models.EventFormInteraction:
		applyFormInteraction(v, p, at)
	case models.EventScroll:
		applyScroll(v, p)
	default:
		return OutcomeUnhandled
	}
	return OutcomeHandled
}

// IsKnownEvent reports whether ApplyEvent handles eventType.
func IsKnownEvent(eventType string) bool {
	switch eventType {
	case models.EventPageView, models.EventTemplateInteraction, models.EventFormInteraction, models.EventScroll:
		return true
	}
	return false
}

func applyPageView(v *models.VisitRecord, p models.EventPayload, at time.Time) {
	v.PagesViewed = append(v.PagesViewed, models.PageViewEntry{
		Page:       p.Page,
		Timestamp:  at,
		TimeOnPage: p.TimeOnPage,
	})
	v.TimeOnPageSeconds = nonNegative(v.TimeOnPageSeconds) + nonNegative(p.TimeOnPage)
}

func applyTemplateInteraction(v *models.VisitRecord, p models.EventPayload, at time.Time) {
	var templateID int64
	if p.TemplateID != nil {
		templateID = *p.TemplateID
	}
	v.TemplateInteractions = append(v.TemplateInteractions, models.TemplateInteractionEntry{
		TemplateID: templateID,
		Action:     p.Action,
		Timestamp:  at,
		Duration:   p.Duration,
	})
	v.TemplatesViewedCount++
}

// Form completion only moves forward unless the client resets the form.
func applyFormInteraction(v *models.VisitRecord, p models.EventPayload, at time.Time) {
	v.FormInteractions = append(v.FormInteractions, models.FormInteractionEntry{
		FieldID:   p.FieldID,
		Action:    p.Action,
		Timestamp: at,
	})
	v.LastInteractionField = p.FieldID

	switch {
	case p.ResetForm && p.FormCompletion == nil:
		v.FormCompletion = 0
	case p.ResetForm:
		v.FormCompletion = *p.FormCompletion
	case p.FormCompletion != nil && *p.FormCompletion > v.FormCompletion:
		v.FormCompletion = *p.FormCompletion
	}
}

func applyScroll(v *models.VisitRecord, p models.EventPayload) {
	if p.ScrollDepth == nil {
		return
	}
	v.ScrollDepth = math.Max(v.ScrollDepth, *p.ScrollDepth)
}
