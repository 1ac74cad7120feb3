package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/LordMirex/mytypist-backend/models"
	"github.com/LordMirex/mytypist-backend/utils"
)

// ErrInvalidEvent wraps every payload validation failure.
var ErrInvalidEvent = errors.New("invalid event data")

var payloadValidator = validator.New()

// SanitizeEvent validates the payload ranges, checks the fields the event
// type needs and returns a copy with string fields trimmed, HTML-escaped and
// length bounded. Unknown event types only get the range checks.
func SanitizeEvent(eventType string, p models.EventPayload) (models.EventPayload, error) {
	if err := payloadValidator.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	p.Page = utils.SanitizeInput(p.Page, 500)
	p.Action = utils.SanitizeInput(p.Action, 50)
	p.FieldID = utils.SanitizeInput(p.FieldID, 100)

	switch eventType {
	case models.EventPageView:
		if p.Page == "" {
			return p, fmt.Errorf("%w: page is required", ErrInvalidEvent)
		}
	case models.EventTemplateInteraction:
		if p.TemplateID == nil || p.Action == "" {
			return p, fmt.Errorf("%w: template_id and action are required", ErrInvalidEvent)
		}
	case models.EventFormInteraction:
		if p.FieldID == "" || p.Action == "" {
			return p, fmt.Errorf("%w: field_id and action are required", ErrInvalidEvent)
		}
	case models.EventScroll:
		if p.ScrollDepth == nil {
			return p, fmt.Errorf("%w: scroll_depth is required", ErrInvalidEvent)
		}
	}
	return p, nil
}
