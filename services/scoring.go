package services

import (
	"math"
	"time"

	"github.com/LordMirex/mytypist-backend/models"
)

const (
	MaxQualityScore          = 10.0
	MaxConversionProbability = 0.95

	// Gaps between interactions longer than this are idle time, not active time.
	activeIdleCutoff = 30 * time.Minute
	quickExitDwell   = 10 * time.Second
	shallowDepth     = 2
)

// nonNegative maps NaN, infinities and negatives to 0.
func nonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

// SessionQuality scores the current state of a visit in [0, 10]. It depends
// only on the record, never on the order events arrived in.
func SessionQuality(v *models.VisitRecord) float64 {
	score := 0.0
	score += math.Min(float64(max(v.TemplatesViewedCount, 0))*0.2, 2.0)
	score += math.Min(nonNegative(v.TimeOnPageSeconds)/60.0, 2.0)
	score += math.Min(nonNegative(v.ScrollDepth), 100) / 100.0
	score += math.Min(nonNegative(v.FormCompletion), 1) * 2.0

	if v.CreatedDocument {
		score += 3.0
	}
	if v.Registered {
		score += 4.0
	}
	if v.DownloadedDocument {
		score += 5.0
	}
	if v.ConvertedToPaid {
		score += 10.0
	}
	return math.Min(score, MaxQualityScore)
}

// ConversionProbability estimates how likely the session is to convert, in
// [0, 0.95]. A session that already converted to paid reports the ceiling.
func ConversionProbability(v *models.VisitRecord) float64 {
	if v.ConvertedToPaid {
		return MaxConversionProbability
	}
	quality := v.SessionQualityScore / MaxQualityScore
	depth := math.Min(float64(max(v.EngagementDepth, 0)), 20) / 20
	templates := math.Min(float64(len(v.TemplateInteractions)), 10) / 10

	p := 0.6*nonNegative(quality) + 0.25*depth + 0.15*templates
	return math.Min(p, MaxConversionProbability)
}

// AccrueActiveTime adds the gap since the previous interaction to current.
// The first interaction, clock skew and idle gaps add nothing.
func AccrueActiveTime(current float64, last *time.Time, now time.Time) float64 {
	current = nonNegative(current)
	if last == nil {
		return current
	}
	gap := now.Sub(*last)
	if gap <= 0 || gap > activeIdleCutoff {
		return current
	}
	return current + gap.Seconds()
}

// ClassifyBounce labels a visit by how it engaged. Sessions that never
// interacted stay pending.
func ClassifyBounce(v *models.VisitRecord, now time.Time) string {
	if v.Bounce || v.FirstInteractionAt == nil {
		return models.BounceTypePending
	}
	if now.Sub(v.CreatedAt) < quickExitDwell {
		return models.BounceTypeQuickExit
	}
	if v.EngagementDepth <= shallowDepth {
		return models.BounceTypeShallow
	}
	return models.BounceTypeEngaged
}
