package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordMirex/mytypist-backend/models"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyEvent_PageView(t *testing.T) {
	v := &models.VisitRecord{}
	assert.Equal(t, OutcomeHandled, ApplyEvent(v, models.EventPageView, models.EventPayload{Page: "/pricing", TimeOnPage: 12}, testTime))
	assert.Equal(t, OutcomeHandled, ApplyEvent(v, models.EventPageView, models.EventPayload{Page: "/templates", TimeOnPage: 8}, testTime))

	require.Len(t, v.PagesViewed, 2)
	assert.Equal(t, "/pricing", v.PagesViewed[0].Page)
	assert.Equal(t, testTime, v.PagesViewed[1].Timestamp)
	assert.Equal(t, 20.0, v.TimeOnPageSeconds)
}

func TestApplyEvent_TemplateInteraction(t *testing.T) {
	v := &models.VisitRecord{}
	ApplyEvent(v, models.EventTemplateInteraction, models.EventPayload{TemplateID: i64(7), Action: "preview", Duration: 3}, testTime)

	require.Len(t, v.TemplateInteractions, 1)
	assert.Equal(t, int64(7), v.TemplateInteractions[0].TemplateID)
	assert.Equal(t, "preview", v.TemplateInteractions[0].Action)
	assert.Equal(t, 1, v.TemplatesViewedCount)
}

func TestApplyEvent_FormCompletionIsMonotonic(t *testing.T) {
	v := &models.VisitRecord{}
	form := func(c *float64, reset bool) {
		ApplyEvent(v, models.EventFormInteraction, models.EventPayload{FieldID: "name", Action: "input", FormCompletion: c, ResetForm: reset}, testTime)
	}

	form(f64(0.6), false)
	assert.Equal(t, 0.6, v.FormCompletion)

	form(f64(0.3), false)
	assert.Equal(t, 0.6, v.FormCompletion)

	form(nil, false)
	assert.Equal(t, 0.6, v.FormCompletion)

	form(f64(0.2), true)
	assert.Equal(t, 0.2, v.FormCompletion)

	form(nil, true)
	assert.Equal(t, 0.0, v.FormCompletion)

	assert.Len(t, v.FormInteractions, 5)
	assert.Equal(t, "name", v.LastInteractionField)
}

func TestApplyEvent_ScrollIsOrderIndependent(t *testing.T) {
	depths := [][]float64{
		{10, 80, 40},
		{80, 40, 10},
		{40, 10, 80},
	}
	for _, order := range depths {
		v := &models.VisitRecord{}
		for _, d := range order {
			ApplyEvent(v, models.EventScroll, models.EventPayload{ScrollDepth: f64(d)}, testTime)
		}
		assert.Equal(t, 80.0, v.ScrollDepth, "order %v", order)
	}
}

func TestApplyEvent_UnknownTypeLeavesRecordUntouched(t *testing.T) {
	v := &models.VisitRecord{ScrollDepth: 20, TemplatesViewedCount: 1}
	before := *v

	assert.Equal(t, OutcomeUnhandled, ApplyEvent(v, "video_play", models.EventPayload{Page: "/x", ScrollDepth: f64(90)}, testTime))
	assert.Equal(t, before, *v)
	assert.False(t, IsKnownEvent("video_play"))
	assert.True(t, IsKnownEvent(models.EventScroll))
}
