package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordMirex/mytypist-backend/models"
)

func TestSanitizeEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   models.EventPayload
		wantErr   bool
	}{
		{"page view", models.EventPageView, models.EventPayload{Page: "/home", TimeOnPage: 5}, false},
		{"page view without page", models.EventPageView, models.EventPayload{TimeOnPage: 5}, true},
		{"negative time on page", models.EventPageView, models.EventPayload{Page: "/", TimeOnPage: -1}, true},
		{"template without id", models.EventTemplateInteraction, models.EventPayload{Action: "view"}, true},
		{"template id zero", models.EventTemplateInteraction, models.EventPayload{TemplateID: i64(0), Action: "view"}, true},
		{"template", models.EventTemplateInteraction, models.EventPayload{TemplateID: i64(3), Action: "view"}, false},
		{"form completion above one", models.EventFormInteraction, models.EventPayload{FieldID: "f", Action: "a", FormCompletion: f64(1.5)}, true},
		{"form", models.EventFormInteraction, models.EventPayload{FieldID: "f", Action: "a", FormCompletion: f64(1)}, false},
		{"scroll above hundred", models.EventScroll, models.EventPayload{ScrollDepth: f64(101)}, true},
		{"scroll missing depth", models.EventScroll, models.EventPayload{}, true},
		{"scroll", models.EventScroll, models.EventPayload{ScrollDepth: f64(100)}, false},
		{"unknown type with empty payload", "video_play", models.EventPayload{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeEvent(tt.eventType, tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSanitizeEvent_EscapesAndTrims(t *testing.T) {
	out, err := SanitizeEvent(models.EventFormInteraction, models.EventPayload{
		FieldID: "  <b>email</b> ",
		Action:  "focus",
	})
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;email&lt;/b&gt;", out.FieldID)

	out, err = SanitizeEvent(models.EventPageView, models.EventPayload{Page: "/" + strings.Repeat("a", 499)})
	require.NoError(t, err)
	assert.Len(t, out.Page, 500)
}
