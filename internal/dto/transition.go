package dto

import "github.com/ibuc-edu/transition-api/internal/models"

// PreviewStudent is one student's eligibility line in a transition preview.
// Field names follow the wire contract consumed by the admin frontend.
type PreviewStudent struct {
	StudentID        string  `json:"aluno_id"`
	Name             string  `json:"nome"`
	LessonsDelivered int     `json:"total_aulas"`
	Presences        int     `json:"presencas"`
	FrequencyPct     float64 `json:"frequencia"`
	Approved         bool    `json:"aprovado_frequencia"`
}

// TransitionPreview is the read-only closure report for one cohort. It is
// the single source of truth for both interactive review and the batch
// orchestrator's eligibility filter.
type TransitionPreview struct {
	CohortID         string   `json:"turma_id"`
	ModuleID         string   `json:"modulo_id"`
	ModuleTitle      string   `json:"modulo_titulo"`
	PlannedLessons   int      `json:"total_licoes"`
	LessonsDelivered int      `json:"aulas_dadas"`
	ModuleComplete   bool     `json:"modulo_completo"`
	BlockedReasons   []string `json:"motivos_bloqueio,omitempty"`
	// SuggestedChargeCents is the configured amount the confirmation UI
	// prefills. Billing happens only when a closure request carries an
	// explicit valor_cents.
	SuggestedChargeCents int64            `json:"valor_sugerido_cents,omitempty"`
	Students             []PreviewStudent `json:"alunos"`
}

// AllApproved reports whether every enrolled student passed the threshold.
func (p *TransitionPreview) AllApproved() bool {
	for _, s := range p.Students {
		if !s.Approved {
			return false
		}
	}
	return true
}

// CloseModuleRequest confirms a closure for one cohort. The approved list
// may differ from the preview's suggestion: a human can override it.
type CloseModuleRequest struct {
	ApprovedStudentIDs []string `json:"alunos_confirmados"`
	ChargeCents        *int64   `json:"valor_cents,omitempty" validate:"omitempty,gt=0"`
}

// ClosureResult reports what a closure actually did.
type ClosureResult struct {
	CohortID       string              `json:"turma_id"`
	ModuleID       string              `json:"modulo_id"`
	NextModuleID   *string             `json:"proximo_modulo_id,omitempty"`
	CohortStatus   models.CohortStatus `json:"turma_status"`
	ApprovedCount  int                 `json:"aprovados"`
	FailedCount    int                 `json:"reprovados"`
	HistoryWritten int                 `json:"historicos_gravados"`
	ChargesCreated int                 `json:"cobrancas_geradas"`
	BillingPending []string            `json:"cobrancas_pendentes,omitempty"`
	BroughtForward int                 `json:"alunos_trazidos"`
	AlreadyClosed  bool                `json:"ja_encerrado"`
}

// BatchCloseRequest runs closure across many cohorts in one invocation.
type BatchCloseRequest struct {
	CohortIDs   []string `json:"turma_ids" validate:"required,min=1,dive,required"`
	ChargeCents *int64   `json:"valor_cents,omitempty" validate:"omitempty,gt=0"`
}

// BatchOutcomeState is the terminal state of one cohort in a batch run.
type BatchOutcomeState string

// Batch outcome states.
const (
	BatchStateBlocked      BatchOutcomeState = "blocked"
	BatchStateNotProcessed BatchOutcomeState = "not_processed"
	BatchStateProcessed    BatchOutcomeState = "processed"
	BatchStateFailed       BatchOutcomeState = "failed"
)

// BatchFailingStudent names a student keeping a cohort out of auto-closure.
type BatchFailingStudent struct {
	Name         string  `json:"nome"`
	FrequencyPct float64 `json:"frequencia"`
}

// BatchCohortOutcome records what happened to one cohort, independently of
// its siblings. Blocked carries the business reason; failed carries the
// wrapped error so a transport failure is never mistaken for ineligibility.
type BatchCohortOutcome struct {
	CohortID        string                `json:"turma_id"`
	State           BatchOutcomeState     `json:"state"`
	Reason          string                `json:"reason,omitempty"`
	FailingStudents []BatchFailingStudent `json:"reprovados,omitempty"`
	Error           string                `json:"error,omitempty"`
	Result          *ClosureResult        `json:"result,omitempty"`
}

// BatchResult aggregates a whole batch run. PerCohort holds an entry for
// every input cohort id, including blocked ones.
type BatchResult struct {
	PerCohort      map[string]BatchCohortOutcome `json:"por_turma"`
	EligibleCount  int                           `json:"aptas"`
	ProcessedCount int                           `json:"processadas"`
	BlockedCount   int                           `json:"bloqueadas"`
	FailedCount    int                           `json:"falhas"`
}

// BringForwardRequest enrolls students approved in a previous module into
// the cohort's current module run.
type BringForwardRequest struct {
	PreviousModuleID string `json:"modulo_anterior_id" validate:"required"`
}

// BringForwardResult reports how many students were brought forward.
type BringForwardResult struct {
	CohortID string `json:"turma_id"`
	Enrolled int    `json:"alunos_matriculados"`
}
