package models

import "time"

// CohortStatus represents the lifecycle of a cohort (turma).
type CohortStatus string

// Possible cohort statuses. Values match the legacy database enum.
const (
	CohortStatusDraft     CohortStatus = "rascunho"
	CohortStatusActive    CohortStatus = "ativa"
	CohortStatusInactive  CohortStatus = "inativa"
	CohortStatusConcluded CohortStatus = "concluida"
)

// Cohort is a group of students progressing through curriculum modules
// together at one site. It has at most one current module at any time;
// closure replaces the pointer atomically.
type Cohort struct {
	ID              string       `db:"id" json:"id"`
	Name            string       `db:"nome" json:"nome"`
	SiteID          string       `db:"polo_id" json:"polo_id"`
	LevelID         string       `db:"nivel_id" json:"nivel_id"`
	CurrentModuleID *string      `db:"modulo_atual_id" json:"modulo_atual_id,omitempty"`
	Capacity        int          `db:"capacidade" json:"capacidade"`
	AcademicYear    int          `db:"ano_letivo" json:"ano_letivo"`
	Status          CohortStatus `db:"status" json:"status"`
	ConcludedAt     *time.Time   `db:"data_conclusao" json:"data_conclusao,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// HasCurrentModule reports whether the cohort currently points at a module.
func (c *Cohort) HasCurrentModule() bool {
	return c != nil && c.CurrentModuleID != nil && *c.CurrentModuleID != ""
}

// Closable reports whether the cohort is in a state a closure may act on.
func (c *Cohort) Closable() bool {
	return c != nil && c.Status == CohortStatusActive && c.HasCurrentModule()
}

// CohortFilter provides filters for listing cohorts.
type CohortFilter struct {
	SiteID          string
	Status          CohortStatus
	CurrentModuleID string
	AcademicYear    int
	Page            int
	PageSize        int
}
