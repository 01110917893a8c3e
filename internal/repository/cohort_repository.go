package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// CohortRepository handles persistence of cohorts (turmas).
type CohortRepository struct {
	db *sqlx.DB
}

// NewCohortRepository constructs the repository.
func NewCohortRepository(db *sqlx.DB) *CohortRepository {
	return &CohortRepository{db: db}
}

const cohortColumns = `id, nome, polo_id, nivel_id, modulo_atual_id, capacidade, ano_letivo, status, data_conclusao, created_at`

// FindByID returns a cohort by its ID.
func (r *CohortRepository) FindByID(ctx context.Context, id string) (*models.Cohort, error) {
	query := fmt.Sprintf(`SELECT %s FROM turmas WHERE id = $1`, cohortColumns)
	var cohort models.Cohort
	if err := r.db.GetContext(ctx, &cohort, query, id); err != nil {
		return nil, err
	}
	return &cohort, nil
}

// List returns cohorts filtered by the provided criteria.
func (r *CohortRepository) List(ctx context.Context, filter models.CohortFilter) ([]models.Cohort, int, error) {
	var conditions []string
	var args []interface{}

	if filter.SiteID != "" {
		conditions = append(conditions, fmt.Sprintf("polo_id = $%d", len(args)+1))
		args = append(args, filter.SiteID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CurrentModuleID != "" {
		conditions = append(conditions, fmt.Sprintf("modulo_atual_id = $%d", len(args)+1))
		args = append(args, filter.CurrentModuleID)
	}
	if filter.AcademicYear > 0 {
		conditions = append(conditions, fmt.Sprintf("ano_letivo = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM turmas%s ORDER BY nome ASC LIMIT %d OFFSET %d`, cohortColumns, clause, size, offset)
	var cohorts []models.Cohort
	if err := r.db.SelectContext(ctx, &cohorts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cohorts: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM turmas" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count cohorts: %w", err)
	}
	return cohorts, total, nil
}

// AdvanceModuleTx updates the cohort's current-module pointer inside an
// open closure transaction. A nil moduleID concludes the cohort.
func (r *CohortRepository) AdvanceModuleTx(ctx context.Context, tx *sqlx.Tx, cohortID string, moduleID *string, status models.CohortStatus) error {
	var concludedAt *time.Time
	if status == models.CohortStatusConcluded {
		now := time.Now().UTC()
		concludedAt = &now
	}
	const query = `UPDATE turmas SET modulo_atual_id = $2, status = $3, data_conclusao = $4 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, cohortID, moduleID, status, concludedAt)
	if err != nil {
		return fmt.Errorf("advance cohort module: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("advance cohort module: cohort %s not found", cohortID)
	}
	return nil
}

// BeginTxx opens a transaction for the closure unit of work.
func (r *CohortRepository) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
