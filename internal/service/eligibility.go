package service

import (
	"math"

	"github.com/ibuc-edu/transition-api/internal/dto"
	"github.com/ibuc-edu/transition-api/internal/models"
)

// EligibilityEvaluator applies the frequency policy to one cohort's
// attendance aggregates. It is pure: no I/O, no clock.
type EligibilityEvaluator struct {
	threshold float64
}

// NewEligibilityEvaluator builds an evaluator for the given percentage
// threshold. Values outside (0, 100] fall back to 75.
func NewEligibilityEvaluator(threshold float64) *EligibilityEvaluator {
	if threshold <= 0 || threshold > 100 {
		threshold = 75
	}
	return &EligibilityEvaluator{threshold: threshold}
}

// Threshold returns the configured approval threshold in percent.
func (e *EligibilityEvaluator) Threshold() float64 {
	return e.threshold
}

// ModuleComplete reports whether every planned lesson was delivered.
func (e *EligibilityEvaluator) ModuleComplete(planned, delivered int) bool {
	return delivered >= planned
}

// Evaluate produces one eligibility line per enrolled student. Students
// without any presence row are evaluated at zero presences, never dropped.
// Approval compares the exact ratio against the threshold; the percentage
// in the output is rounded for display only.
func (e *EligibilityEvaluator) Evaluate(students []models.EnrolledStudent, presences []models.StudentPresenceCount, delivered int) []dto.PreviewStudent {
	byStudent := make(map[string]int, len(presences))
	for _, p := range presences {
		byStudent[p.StudentID] = p.Presences
	}

	// A student cannot be present at more lessons than were delivered;
	// duplicate attendance rows must not push frequency past 100%.
	divisor := delivered
	if divisor < 1 {
		divisor = 1
	}

	lines := make([]dto.PreviewStudent, 0, len(students))
	for _, student := range students {
		count := byStudent[student.StudentID]
		if count > delivered {
			count = delivered
		}
		ratio := float64(count) / float64(divisor) * 100
		lines = append(lines, dto.PreviewStudent{
			StudentID:        student.StudentID,
			Name:             student.Name,
			LessonsDelivered: delivered,
			Presences:        count,
			FrequencyPct:     math.Round(ratio*10) / 10,
			Approved:         ratio >= e.threshold,
		})
	}
	return lines
}
