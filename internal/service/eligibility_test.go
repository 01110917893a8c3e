package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibuc-edu/transition-api/internal/models"
)

func TestEligibilityEvaluatorThresholdFallback(t *testing.T) {
	assert.Equal(t, 75.0, NewEligibilityEvaluator(0).Threshold())
	assert.Equal(t, 75.0, NewEligibilityEvaluator(150).Threshold())
	assert.Equal(t, 80.0, NewEligibilityEvaluator(80).Threshold())
}

func TestEligibilityEvaluatorModuleComplete(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	assert.False(t, ev.ModuleComplete(10, 8))
	assert.True(t, ev.ModuleComplete(10, 10))
	assert.True(t, ev.ModuleComplete(10, 11))
	assert.True(t, ev.ModuleComplete(0, 0))
}

func TestEligibilityEvaluatorFrequencyAgainstDelivered(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	students := []models.EnrolledStudent{
		{StudentID: "a1", Name: "Ana"},
		{StudentID: "a2", Name: "Bruno"},
	}
	presences := []models.StudentPresenceCount{
		{StudentID: "a1", Presences: 8},
		{StudentID: "a2", Presences: 5},
	}

	// Only 8 of 10 planned lessons happened; full attendance is still 100%.
	lines := ev.Evaluate(students, presences, 8)
	require.Len(t, lines, 2)

	assert.Equal(t, 100.0, lines[0].FrequencyPct)
	assert.True(t, lines[0].Approved)

	assert.Equal(t, 62.5, lines[1].FrequencyPct)
	assert.False(t, lines[1].Approved)
}

func TestEligibilityEvaluatorZeroDeliveredLessons(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	students := []models.EnrolledStudent{{StudentID: "a1", Name: "Ana"}}

	lines := ev.Evaluate(students, nil, 0)
	require.Len(t, lines, 1)
	assert.Equal(t, 0.0, lines[0].FrequencyPct)
	assert.False(t, lines[0].Approved)
}

func TestEligibilityEvaluatorStudentWithoutAttendanceRows(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	students := []models.EnrolledStudent{
		{StudentID: "a1", Name: "Ana"},
		{StudentID: "a2", Name: "Bruno"},
	}
	presences := []models.StudentPresenceCount{{StudentID: "a1", Presences: 10}}

	lines := ev.Evaluate(students, presences, 10)
	require.Len(t, lines, 2)
	assert.Equal(t, "a2", lines[1].StudentID)
	assert.Equal(t, 0, lines[1].Presences)
	assert.Equal(t, 0.0, lines[1].FrequencyPct)
	assert.False(t, lines[1].Approved)
}

func TestEligibilityEvaluatorExactThresholdUnrounded(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	students := []models.EnrolledStudent{
		{StudentID: "a1", Name: "Ana"},
		{StudentID: "a2", Name: "Bruno"},
	}
	presences := []models.StudentPresenceCount{
		{StudentID: "a1", Presences: 6},
		{StudentID: "a2", Presences: 597},
	}

	// 6/8 = 75% exactly passes; 597/800 = 74.625% fails even though it
	// would round up to 74.6 and a coarser rounding could show 75.
	lines := ev.Evaluate(students, presences, 8)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Approved)

	lines800 := ev.Evaluate(students[1:], presences[1:], 800)
	require.Len(t, lines800, 1)
	assert.False(t, lines800[0].Approved)
	assert.Equal(t, 74.6, lines800[0].FrequencyPct)
}

func TestEligibilityEvaluatorPresencesClampedToDelivered(t *testing.T) {
	ev := NewEligibilityEvaluator(75)
	students := []models.EnrolledStudent{{StudentID: "a1", Name: "Ana"}}
	presences := []models.StudentPresenceCount{{StudentID: "a1", Presences: 12}}

	lines := ev.Evaluate(students, presences, 10)
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Presences)
	assert.Equal(t, 100.0, lines[0].FrequencyPct)
}

func TestAttendanceStatusCountsAsPresence(t *testing.T) {
	assert.True(t, models.AttendancePresent.CountsAsPresence())
	assert.True(t, models.AttendanceLate.CountsAsPresence())
	assert.False(t, models.AttendanceAbsent.CountsAsPresence())
	assert.False(t, models.AttendanceExcused.CountsAsPresence())
	assert.False(t, models.AttendanceMakeup.CountsAsPresence())
}
