package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment (matricula).
type EnrollmentStatus string

// Enrollment statuses used by the engine. The full legacy enum carries
// more states; only the active one defines the evaluation population.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ativa"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelada"
)

// Enrollment links a student to a cohort.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"aluno_id" json:"aluno_id"`
	CohortID   string           `db:"turma_id" json:"turma_id"`
	SiteID     string           `db:"polo_id" json:"polo_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"data_matricula" json:"data_matricula"`
}

// EnrolledStudent is the projection the eligibility computation works on.
// Students without an active enrollment are excluded even if stray
// attendance rows exist for them.
type EnrolledStudent struct {
	StudentID string `db:"aluno_id" json:"aluno_id"`
	Name      string `db:"nome" json:"nome"`
}
