package cascade

import (
	"math"

	"sitepulse.io/sitepulse/internal/domain"
)

// ScoreParams holds the weights and fallbacks of the composite health score.
// The origin system hardcoded these; they are parameters here pending
// product-owner confirmation of the bands and windows.
type ScoreParams struct {
	ScheduleWeight float64
	BudgetWeight   float64
	QualityWeight  float64
	SafetyWeight   float64

	// DefaultQuality is used when no inspections completed inside the
	// trailing quality window.
	DefaultQuality float64
}

// DefaultScoreParams returns the weights carried over from the origin system.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		ScheduleWeight: 0.30,
		BudgetWeight:   0.30,
		QualityWeight:  0.25,
		SafetyWeight:   0.15,
		DefaultQuality: 4.0,
	}
}

// ScoreInput is the set of facts the score is computed from. Quality scores
// and the safety incident count are already window-restricted.
type ScoreInput struct {
	VarianceDays    int
	EstimatedCost   float64
	ActualCost      float64
	QualityScores   []float64
	SafetyIncidents int
}

// SnapshotInput builds a ScoreInput from a project snapshot.
func SnapshotInput(snap *domain.ProjectSnapshot) ScoreInput {
	return ScoreInput{
		VarianceDays:    snap.Project.ScheduleVarianceDays,
		EstimatedCost:   snap.Project.EstimatedCost,
		ActualCost:      snap.Project.ActualCost,
		QualityScores:   snap.QualityScores,
		SafetyIncidents: snap.SafetyIncidents,
	}
}

// Score computes the weighted composite health score and its derived status
// color. Pure function: callable idempotently whenever a contributing fact
// changes. The result is rounded to two decimals and always lands in [1, 5].
func Score(in ScoreInput, p ScoreParams) (float64, domain.StatusColor) {
	score := p.ScheduleWeight*scheduleSubScore(in.VarianceDays) +
		p.BudgetWeight*budgetSubScore(in.EstimatedCost, in.ActualCost) +
		p.QualityWeight*qualitySubScore(in.QualityScores, p.DefaultQuality) +
		p.SafetyWeight*safetySubScore(in.SafetyIncidents)

	score = math.Round(score*100) / 100
	return score, domain.ColorForScore(score)
}

func scheduleSubScore(varianceDays int) float64 {
	switch {
	case varianceDays <= 0:
		return 5.0
	case varianceDays <= 5:
		return 4.0
	case varianceDays <= 10:
		return 3.0
	case varianceDays <= 20:
		return 2.0
	default:
		return 1.0
	}
}

func budgetSubScore(estimated, actual float64) float64 {
	// A project without an estimate cannot be over budget.
	if estimated <= 0 {
		return 5.0
	}
	ratio := actual / estimated
	switch {
	case ratio <= 1.0:
		return 5.0
	case ratio <= 1.05:
		return 4.0
	case ratio <= 1.10:
		return 3.0
	case ratio <= 1.20:
		return 2.0
	default:
		return 1.0
	}
}

func qualitySubScore(scores []float64, fallback float64) float64 {
	if len(scores) == 0 {
		return fallback
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func safetySubScore(incidents int) float64 {
	switch {
	case incidents == 0:
		return 5.0
	case incidents == 1:
		return 3.0
	default:
		return 1.0
	}
}
