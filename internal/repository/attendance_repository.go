package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// AttendanceRepository reads delivered lessons and attendance aggregates.
// The transition engine never writes attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CountDeliveredLessons returns how many distinct lessons were actually
// taught for the cohort within the given module.
func (r *AttendanceRepository) CountDeliveredLessons(ctx context.Context, cohortID, moduleID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT data) FROM aulas WHERE turma_id = $1 AND modulo_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, cohortID, moduleID); err != nil {
		return 0, fmt.Errorf("count delivered lessons: %w", err)
	}
	return count, nil
}

// ListPresenceCounts aggregates presences per student, bounded to the
// lesson dates delivered for the module. Late arrivals count as presence;
// excused absences and makeups do not.
func (r *AttendanceRepository) ListPresenceCounts(ctx context.Context, cohortID, moduleID string) ([]models.StudentPresenceCount, error) {
	const query = `
SELECT p.aluno_id, COUNT(*) AS presencas
FROM presencas p
JOIN aulas au ON au.turma_id = p.turma_id AND au.data = p.data
WHERE p.turma_id = $1 AND au.modulo_id = $2 AND p.status IN ($3, $4)
GROUP BY p.aluno_id`
	var counts []models.StudentPresenceCount
	if err := r.db.SelectContext(ctx, &counts, query, cohortID, moduleID, models.AttendancePresent, models.AttendanceLate); err != nil {
		return nil, fmt.Errorf("aggregate presences: %w", err)
	}
	return counts, nil
}
