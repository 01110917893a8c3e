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

// HistoryRepository persists completion-history entries. Rows are unique
// per (student, module); a second closure attempt must never duplicate.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListExistingStudents returns which of the given students already have a
// completion entry for the module.
func (r *HistoryRepository) ListExistingStudents(ctx context.Context, moduleID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT aluno_id FROM historico_modulos WHERE modulo_id = $1 AND aluno_id = ANY($2)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, moduleID, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list existing history: %w", err)
	}
	return ids, nil
}

// BulkInsertTx writes completion entries inside the closure transaction.
// Conflicting (student, module) pairs are skipped, keeping the operation
// idempotent even if the caller raced a retry. Returns rows inserted.
func (r *HistoryRepository) BulkInsertTx(ctx context.Context, tx *sqlx.Tx, entries []models.CompletionEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	const query = `
INSERT INTO historico_modulos (id, aluno_id, turma_id, modulo_id, situacao, encerrado_em)
VALUES (:id, :aluno_id, :turma_id, :modulo_id, :situacao, :encerrado_em)
ON CONFLICT (aluno_id, modulo_id) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].ClosedAt.IsZero() {
			entries[i].ClosedAt = now
		}
		result, err := tx.NamedExecContext(ctx, query, entries[i])
		if err != nil {
			return inserted, fmt.Errorf("insert completion entry: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	return inserted, nil
}

// ListApprovedStudents returns students approved for the given module,
// used to bring them forward into a successor cohort run.
func (r *HistoryRepository) ListApprovedStudents(ctx context.Context, moduleID string) ([]string, error) {
	const query = `SELECT aluno_id FROM historico_modulos WHERE modulo_id = $1 AND situacao = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, moduleID, models.CompletionApproved); err != nil {
		return nil, fmt.Errorf("list approved students: %w", err)
	}
	return ids, nil
}
