package models

import "time"

// ChargeRequest asks the billing collaborator to create one charge.
// The resulting billing record is owned by that collaborator, not by
// this engine.
type ChargeRequest struct {
	CohortID    string `json:"turma_id"`
	StudentID   string `json:"aluno_id"`
	AmountCents int64  `json:"valor_cents"`
}

// ReconciliationStatus tracks a recorded billing failure.
type ReconciliationStatus string

// Reconciliation states.
const (
	ReconciliationPending  ReconciliationStatus = "pendente"
	ReconciliationResolved ReconciliationStatus = "resolvida"
)

// BillingReconciliation records a charge that could not be created after
// a closure committed, so the failure stays visible for manual follow-up.
type BillingReconciliation struct {
	ID          string               `db:"id" json:"id"`
	CohortID    string               `db:"turma_id" json:"turma_id"`
	StudentID   string               `db:"aluno_id" json:"aluno_id"`
	ModuleID    string               `db:"modulo_id" json:"modulo_id"`
	AmountCents int64                `db:"valor_cents" json:"valor_cents"`
	Reason      string               `db:"motivo" json:"motivo"`
	Status      ReconciliationStatus `db:"status" json:"status"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time           `db:"resolved_at" json:"resolved_at,omitempty"`
}
