package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ibuc-edu/transition-api/internal/models"
)

// ReconciliationRepository persists billing failures recorded after a
// closure committed, so they stay visible until resolved.
type ReconciliationRepository struct {
	db *sqlx.DB
}

// NewReconciliationRepository constructs the repository.
func NewReconciliationRepository(db *sqlx.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// Create stores a pending reconciliation entry.
func (r *ReconciliationRepository) Create(ctx context.Context, entry *models.BillingReconciliation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.ReconciliationPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO cobrancas_reconciliacao (id, turma_id, aluno_id, modulo_id, valor_cents, motivo, status, created_at)
VALUES (:id, :turma_id, :aluno_id, :modulo_id, :valor_cents, :motivo, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create reconciliation entry: %w", err)
	}
	return nil
}

// ListPending returns unresolved entries, oldest first.
func (r *ReconciliationRepository) ListPending(ctx context.Context, limit int) ([]models.BillingReconciliation, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, turma_id, aluno_id, modulo_id, valor_cents, motivo, status, created_at, resolved_at
FROM cobrancas_reconciliacao
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2`
	var entries []models.BillingReconciliation
	if err := r.db.SelectContext(ctx, &entries, query, models.ReconciliationPending, limit); err != nil {
		return nil, fmt.Errorf("list pending reconciliations: %w", err)
	}
	return entries, nil
}

// MarkResolved flags an entry as resolved.
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, id string) error {
	const query = `UPDATE cobrancas_reconciliacao SET status = $2, resolved_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReconciliationResolved, time.Now().UTC()); err != nil {
		return fmt.Errorf("resolve reconciliation entry: %w", err)
	}
	return nil
}
