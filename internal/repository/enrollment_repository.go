package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments (matriculas).
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveByCohort returns the students with an active enrollment in the
// cohort. This is the population eligible for evaluation.
func (r *EnrollmentRepository) ListActiveByCohort(ctx context.Context, cohortID string) ([]models.EnrolledStudent, error) {
	const query = `
SELECT m.aluno_id, a.nome
FROM matriculas m
JOIN alunos a ON a.id = m.aluno_id
WHERE m.turma_id = $1 AND m.status = $2
ORDER BY a.nome ASC`
	var students []models.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, cohortID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// CreateMissing enrolls the given students into the cohort, skipping any
// that already hold an active enrollment there. Returns how many rows
// were actually created.
func (r *EnrollmentRepository) CreateMissing(ctx context.Context, cohortID, siteID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	const query = `
INSERT INTO matriculas (id, aluno_id, turma_id, polo_id, status, data_matricula)
SELECT t.uuid, t.aluno, $1, $2, $3, $4
FROM UNNEST($5::text[], $6::text[]) AS t(uuid, aluno)
WHERE NOT EXISTS (
	SELECT 1 FROM matriculas m
	WHERE m.aluno_id = t.aluno AND m.turma_id = $1 AND m.status = $3
)`
	ids := make([]string, len(studentIDs))
	for i := range studentIDs {
		ids[i] = uuid.NewString()
	}
	result, err := r.db.ExecContext(ctx, query,
		cohortID, siteID, models.EnrollmentStatusActive, time.Now().UTC(), pq.Array(ids), pq.Array(studentIDs))
	if err != nil {
		return 0, fmt.Errorf("bring students forward: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bring students forward: %w", err)
	}
	return int(affected), nil
}
