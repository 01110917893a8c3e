package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibuc-edu/transition-api/internal/dto"
	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type transitionEngine interface {
	Preview(ctx context.Context, cohortID string) (*dto.TransitionPreview, error)
	Close(ctx context.Context, cohortID string, req dto.CloseModuleRequest) (*dto.ClosureResult, error)
}

// BatchService closes modules across many cohorts in one invocation.
// Cohorts are isolated from each other: one failing closure never stops
// its siblings, and ineligibility is reported as blocked, not as an error.
type BatchService struct {
	cohorts            cohortReader
	engine             transitionEngine
	metrics            *MetricsService
	validator          *validator.Validate
	logger             *zap.Logger
	previewConcurrency int
}

// NewBatchService constructs the batch orchestrator.
func NewBatchService(cohorts cohortReader, engine transitionEngine, metrics *MetricsService, previewConcurrency int, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if previewConcurrency < 1 {
		previewConcurrency = 4
	}
	return &BatchService{
		cohorts:            cohorts,
		engine:             engine,
		metrics:            metrics,
		validator:          validate,
		logger:             logger,
		previewConcurrency: previewConcurrency,
	}
}

type previewOutcome struct {
	preview *dto.TransitionPreview
	blocked *dto.BatchCohortOutcome
	err     error
}

// CloseBatch previews every requested cohort, auto-closes the eligible
// ones and reports a terminal state for each input id. Eligibility for
// auto-closure requires an active cohort with a current module, a complete
// module, at least one enrolled student and every student above the
// frequency threshold.
func (s *BatchService) CloseBatch(ctx context.Context, req dto.BatchCloseRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	cohortIDs := dedupe(req.CohortIDs)
	result := &dto.BatchResult{PerCohort: make(map[string]dto.BatchCohortOutcome, len(cohortIDs))}

	// Phase one: previews are read-only, so they run concurrently.
	previews := make([]previewOutcome, len(cohortIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.previewConcurrency)
	for i, id := range cohortIDs {
		i, id := i, id
		g.Go(func() error {
			previews[i] = s.previewCohort(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var eligible []string
	previewByCohort := make(map[string]*dto.TransitionPreview, len(cohortIDs))
	for i, id := range cohortIDs {
		outcome := previews[i]
		if outcome.blocked != nil {
			outcome.blocked.CohortID = id
			result.PerCohort[id] = *outcome.blocked
			result.BlockedCount++
			continue
		}
		if outcome.err != nil {
			result.PerCohort[id] = dto.BatchCohortOutcome{
				CohortID: id,
				State:    dto.BatchStateFailed,
				Error:    fmt.Sprintf("preview failed: %v", outcome.err),
			}
			result.FailedCount++
			continue
		}
		if blocked := s.classify(outcome.preview); blocked != nil {
			blocked.CohortID = id
			result.PerCohort[id] = *blocked
			result.BlockedCount++
			continue
		}
		previewByCohort[id] = outcome.preview
		eligible = append(eligible, id)
	}
	result.EligibleCount = len(eligible)

	// Phase two: closures are transactional and run one cohort at a time.
	// Cancellation is honoured only between cohorts, never mid-closure.
	for i, id := range eligible {
		if ctx.Err() != nil {
			for _, remaining := range eligible[i:] {
				result.PerCohort[remaining] = dto.BatchCohortOutcome{
					CohortID: remaining,
					State:    dto.BatchStateNotProcessed,
					Reason:   "batch cancelled",
				}
			}
			break
		}

		preview := previewByCohort[id]
		approved := make([]string, 0, len(preview.Students))
		for _, st := range preview.Students {
			approved = append(approved, st.StudentID)
		}

		closure, err := s.engine.Close(ctx, id, dto.CloseModuleRequest{
			ApprovedStudentIDs: approved,
			ChargeCents:        req.ChargeCents,
		})
		switch {
		case err == nil:
			result.PerCohort[id] = dto.BatchCohortOutcome{CohortID: id, State: dto.BatchStateProcessed, Result: closure}
			result.ProcessedCount++
		case closure != nil && len(closure.BillingPending) > 0:
			// The closure itself committed; only billing is pending.
			result.PerCohort[id] = dto.BatchCohortOutcome{
				CohortID: id,
				State:    dto.BatchStateProcessed,
				Error:    err.Error(),
				Result:   closure,
			}
			result.ProcessedCount++
		default:
			s.logger.Error("batch closure failed", zap.String("turma_id", id), zap.Error(err))
			result.PerCohort[id] = dto.BatchCohortOutcome{
				CohortID: id,
				State:    dto.BatchStateFailed,
				Error:    err.Error(),
			}
			result.FailedCount++
		}
	}

	if s.metrics != nil {
		for _, outcome := range result.PerCohort {
			s.metrics.RecordBatchOutcome(string(outcome.State))
		}
	}

	s.logger.Info("batch closure finished",
		zap.Int("turmas", len(cohortIDs)),
		zap.Int("aptas", result.EligibleCount),
		zap.Int("processadas", result.ProcessedCount),
		zap.Int("bloqueadas", result.BlockedCount),
		zap.Int("falhas", result.FailedCount),
	)
	return result, nil
}

// previewCohort gates the cohort on its lifecycle state before running the
// read-only preview. A cohort that is not active, or holds no current
// module, is blocked up front rather than attempted and reported as a
// failure.
func (s *BatchService) previewCohort(ctx context.Context, id string) previewOutcome {
	cohort, err := s.cohorts.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return previewOutcome{err: appErrors.Clone(appErrors.ErrNotFound, "cohort not found")}
		}
		return previewOutcome{err: appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load cohort")}
	}
	if !cohort.Closable() {
		reason := "Turma sem módulo atual"
		if cohort.Status != models.CohortStatusActive {
			reason = fmt.Sprintf("Turma %s, não ativa", cohort.Status)
		}
		return previewOutcome{blocked: &dto.BatchCohortOutcome{State: dto.BatchStateBlocked, Reason: reason}}
	}

	preview, err := s.engine.Preview(ctx, id)
	return previewOutcome{preview: preview, err: err}
}

// classify returns a blocked outcome when the preview rules the cohort out
// of auto-closure, or nil when it is eligible.
func (s *BatchService) classify(preview *dto.TransitionPreview) *dto.BatchCohortOutcome {
	if !preview.ModuleComplete {
		return &dto.BatchCohortOutcome{
			State:  dto.BatchStateBlocked,
			Reason: fmt.Sprintf("Módulo incompleto (%d/%d aulas)", preview.LessonsDelivered, preview.PlannedLessons),
		}
	}
	if len(preview.Students) == 0 {
		return &dto.BatchCohortOutcome{
			State:  dto.BatchStateBlocked,
			Reason: "Turma sem alunos matriculados",
		}
	}

	if preview.AllApproved() {
		return nil
	}
	var failing []dto.BatchFailingStudent
	for _, st := range preview.Students {
		if !st.Approved {
			failing = append(failing, dto.BatchFailingStudent{Name: st.Name, FrequencyPct: st.FrequencyPct})
		}
	}
	return &dto.BatchCohortOutcome{
		State:           dto.BatchStateBlocked,
		Reason:          fmt.Sprintf("%d aluno(s) com baixa frequência", len(failing)),
		FailingStudents: failing,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
