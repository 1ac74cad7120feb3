package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LordMirex/mytypist-backend/models"
)

var (
	ErrInvalidTransition = errors.New("invalid incident status transition")
	ErrInvalidStatus     = errors.New("unknown incident status")
)

var transitions = map[models.IncidentStatus][]models.IncidentStatus{
	models.IncidentOpen:          {models.IncidentInvestigating},
	models.IncidentInvestigating: {models.IncidentResolved, models.IncidentFalsePositive},
}

// CanTransition reports whether an incident in status from may move to to.
// Terminal statuses have no outgoing transitions.
func CanTransition(from, to models.IncidentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyStatus moves inc to req.Status at time now, recording the first
// response time when it leaves open and the resolution time when it reaches a
// terminal status. Requesting the current status only updates notes and
// assignment, which terminal incidents refuse.
func ApplyStatus(inc *models.SecurityIncident, req models.IncidentStatusRequest, now time.Time) error {
	if !req.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if inc.Status.Terminal() {
		return fmt.Errorf("%w: incident is %s", ErrInvalidTransition, inc.Status)
	}
	if req.Status != inc.Status && !CanTransition(inc.Status, req.Status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inc.Status, req.Status)
	}

	elapsed := now.Sub(inc.CreatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if inc.Status == models.IncidentOpen && req.Status != models.IncidentOpen && inc.ResponseTimeSeconds == nil {
		inc.ResponseTimeSeconds = &elapsed
	}
	if req.Status.Terminal() {
		resolved := now
		inc.ResolvedAt = &resolved
		inc.ResolutionTimeSeconds = &elapsed
	}

	inc.Status = req.Status
	if req.AssignedTo != nil {
		inc.AssignedTo = req.AssignedTo
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		if inc.InvestigationNotes != "" {
			inc.InvestigationNotes += "\n"
		}
		inc.InvestigationNotes += fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), notes)
	}
	return nil
}
