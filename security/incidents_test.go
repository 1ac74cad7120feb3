package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordMirex/mytypist-backend/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.IncidentStatus
		want     bool
	}{
		{models.IncidentOpen, models.IncidentInvestigating, true},
		{models.IncidentOpen, models.IncidentResolved, false},
		{models.IncidentInvestigating, models.IncidentResolved, true},
		{models.IncidentInvestigating, models.IncidentFalsePositive, true},
		{models.IncidentInvestigating, models.IncidentOpen, false},
		{models.IncidentResolved, models.IncidentInvestigating, false},
		{models.IncidentFalsePositive, models.IncidentOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestApplyStatus_Lifecycle(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc := &models.SecurityIncident{Status: models.IncidentOpen, CreatedAt: created}
	admin := int64(9)

	err := ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentInvestigating, AssignedTo: &admin, Notes: "looking"}, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.IncidentInvestigating, inc.Status)
	require.NotNil(t, inc.ResponseTimeSeconds)
	assert.Equal(t, 60.0, *inc.ResponseTimeSeconds)
	assert.Equal(t, &admin, inc.AssignedTo)
	assert.Nil(t, inc.ResolvedAt)

	err = ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentInvestigating, Notes: "still looking"}, created.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Contains(t, inc.InvestigationNotes, "looking\n[")

	err = ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentResolved}, created.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, 3600.0, *inc.ResolutionTimeSeconds)
	assert.Equal(t, 60.0, *inc.ResponseTimeSeconds)

	err = ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentResolved}, created.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentOpen}, created.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyStatus_Rejections(t *testing.T) {
	inc := &models.SecurityIncident{Status: models.IncidentOpen}

	err := ApplyStatus(inc, models.IncidentStatusRequest{Status: "closed"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = ApplyStatus(inc, models.IncidentStatusRequest{Status: models.IncidentFalsePositive}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.IncidentOpen, inc.Status)
	assert.Nil(t, inc.ResponseTimeSeconds)
}
