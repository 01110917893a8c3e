package models

import "time"

// CompletionStatus records the outcome of a student's module.
type CompletionStatus string

// Completion outcomes ("situação" in the legacy system).
const (
	CompletionApproved CompletionStatus = "aprovado"
	CompletionFailed   CompletionStatus = "reprovado"
)

// CompletionEntry is the permanent record that a student finished a module
// within a cohort. Unique per (student, module); the engine is the
// exclusive writer of these rows.
type CompletionEntry struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"aluno_id" json:"aluno_id"`
	CohortID  string           `db:"turma_id" json:"turma_id"`
	ModuleID  string           `db:"modulo_id" json:"modulo_id"`
	Status    CompletionStatus `db:"situacao" json:"situacao"`
	ClosedAt  time.Time        `db:"encerrado_em" json:"encerrado_em"`
}
