package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ibuc-edu/transition-api/internal/dto"
	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type cohortRepo interface {
	cohortReader
	AdvanceModuleTx(ctx context.Context, tx *sqlx.Tx, cohortID string, moduleID *string, status models.CohortStatus) error
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
}

type historyRepo interface {
	ListExistingStudents(ctx context.Context, moduleID string, studentIDs []string) ([]string, error)
	BulkInsertTx(ctx context.Context, tx *sqlx.Tx, entries []models.CompletionEntry) (int, error)
	ListApprovedStudents(ctx context.Context, moduleID string) ([]string, error)
}

type enrollmentWriter interface {
	CreateMissing(ctx context.Context, cohortID, siteID string, studentIDs []string) (int, error)
}

type chargeCreator interface {
	CreateCharge(ctx context.Context, req models.ChargeRequest) (string, error)
}

type billingFailureRecorder interface {
	Record(ctx context.Context, entry *models.BillingReconciliation) error
}

// TransitionService owns the module transition lifecycle: the read-only
// preview and the single-cohort closure transaction.
type TransitionService struct {
	cohorts     cohortRepo
	history     historyRepo
	enrollments enrollmentWriter
	aggregator  *AttendanceAggregator
	evaluator   *EligibilityEvaluator
	billing     chargeCreator
	reconciler  billingFailureRecorder
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate

	defaultChargeCents int64
	previewTTL         time.Duration
	bringForward       bool

	logger *zap.Logger
}

// TransitionServiceOptions carries the policy knobs and optional
// collaborators of the transition service.
type TransitionServiceOptions struct {
	Billing            chargeCreator
	Reconciler         billingFailureRecorder
	Cache              *CacheService
	Metrics            *MetricsService
	DefaultChargeCents int64
	PreviewTTL         time.Duration
	BringForward       bool
}

// NewTransitionService constructs the service.
func NewTransitionService(cohorts cohortRepo, history historyRepo, enrollments enrollmentWriter, aggregator *AttendanceAggregator, evaluator *EligibilityEvaluator, opts TransitionServiceOptions, validate *validator.Validate, logger *zap.Logger) *TransitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = NewEligibilityEvaluator(0)
	}
	if opts.DefaultChargeCents <= 0 {
		opts.DefaultChargeCents = 5000
	}
	return &TransitionService{
		cohorts:            cohorts,
		history:            history,
		enrollments:        enrollments,
		aggregator:         aggregator,
		evaluator:          evaluator,
		billing:            opts.Billing,
		reconciler:         opts.Reconciler,
		cache:              opts.Cache,
		metrics:            opts.Metrics,
		validator:          validate,
		defaultChargeCents: opts.DefaultChargeCents,
		previewTTL:         opts.PreviewTTL,
		bringForward:       opts.BringForward,
		logger:             logger,
	}
}

func previewCacheKey(cohortID string) string {
	return "preview:turma:" + cohortID
}

// Preview computes the closure report for one cohort without writing
// anything. Every enrolled student appears exactly once, including those
// with zero attendance rows.
func (s *TransitionService) Preview(ctx context.Context, cohortID string) (*dto.TransitionPreview, error) {
	if s.cache != nil {
		var cached dto.TransitionPreview
		if hit, _ := s.cache.Get(ctx, previewCacheKey(cohortID), &cached); hit {
			s.metrics.RecordPreview("cache")
			return &cached, nil
		}
	}

	snapshot, err := s.aggregator.Snapshot(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	preview := s.buildPreview(snapshot)
	s.metrics.RecordPreview("computed")

	if s.cache != nil {
		if err := s.cache.Set(ctx, previewCacheKey(cohortID), preview, s.previewTTL); err != nil {
			s.logger.Warn("failed to cache preview", zap.String("turma_id", cohortID), zap.Error(err))
		}
	}
	return preview, nil
}

func (s *TransitionService) buildPreview(snapshot *cohortSnapshot) *dto.TransitionPreview {
	students := s.evaluator.Evaluate(snapshot.Students, snapshot.Presences, snapshot.Delivered)
	complete := s.evaluator.ModuleComplete(snapshot.Module.PlannedLessons, snapshot.Delivered)

	var reasons []string
	if !complete {
		reasons = append(reasons, fmt.Sprintf("Módulo incompleto (%d/%d aulas)", snapshot.Delivered, snapshot.Module.PlannedLessons))
	}
	if len(students) == 0 {
		reasons = append(reasons, "Turma sem alunos matriculados")
	}
	failing := 0
	for _, st := range students {
		if !st.Approved {
			failing++
		}
	}
	if failing > 0 {
		reasons = append(reasons, fmt.Sprintf("%d aluno(s) com baixa frequência", failing))
	}

	preview := &dto.TransitionPreview{
		CohortID:         snapshot.Cohort.ID,
		ModuleID:         snapshot.Module.ID,
		ModuleTitle:      snapshot.Module.Title,
		PlannedLessons:   snapshot.Module.PlannedLessons,
		LessonsDelivered: snapshot.Delivered,
		ModuleComplete:   complete,
		BlockedReasons:   reasons,
		Students:         students,
	}
	if s.billing != nil {
		preview.SuggestedChargeCents = s.defaultChargeCents
	}
	return preview
}

// Close runs the module closure transaction for one cohort. History rows
// and the module pointer move in a single database transaction; billing
// charges run after commit and are recorded for reconciliation when they
// fail, never by rolling the closure back.
func (s *TransitionService) Close(ctx context.Context, cohortID string, req dto.CloseModuleRequest) (*dto.ClosureResult, error) {
	start := time.Now()
	result, err := s.close(ctx, cohortID, req)
	if s.metrics != nil {
		s.metrics.RecordClosure(closureResultLabel(result, err), time.Since(start))
	}
	return result, err
}

func closureResultLabel(result *dto.ClosureResult, err error) string {
	switch {
	case err != nil && result != nil && len(result.BillingPending) > 0:
		return "partial"
	case err != nil:
		return "failed"
	case result != nil && result.AlreadyClosed:
		return "resumed"
	default:
		return "committed"
	}
}

func (s *TransitionService) close(ctx context.Context, cohortID string, req dto.CloseModuleRequest) (*dto.ClosureResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid closure payload")
	}
	if req.ChargeCents != nil && s.billing == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "billing is disabled")
	}

	snapshot, err := s.aggregator.Snapshot(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	cohort, module := snapshot.Cohort, snapshot.Module
	if cohort.Status != models.CohortStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cohort is %s, not active", cohort.Status))
	}

	enrolledIDs := make([]string, 0, len(snapshot.Students))
	enrolled := make(map[string]bool, len(snapshot.Students))
	for _, st := range snapshot.Students {
		enrolledIDs = append(enrolledIDs, st.StudentID)
		enrolled[st.StudentID] = true
	}

	approved := make(map[string]bool, len(req.ApprovedStudentIDs))
	var unknown []string
	for _, id := range req.ApprovedStudentIDs {
		if !enrolled[id] {
			unknown = append(unknown, id)
			continue
		}
		approved[id] = true
	}
	if len(unknown) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("students not enrolled in cohort: %s", strings.Join(unknown, ", ")))
	}

	existing, err := s.history.ListExistingStudents(ctx, module.ID, enrolledIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to inspect completion history")
	}
	existingSet := make(map[string]bool, len(existing))
	for _, id := range existing {
		existingSet[id] = true
	}

	// Every enrolled student already holds a history row for this module:
	// a previous closure wrote its records but was interrupted before the
	// pointer advanced. Resume by advancing only, without new rows or
	// charges.
	resuming := len(enrolledIDs) > 0 && len(existing) == len(enrolledIDs)

	nextModuleID := module.NextModuleID
	nextStatus := models.CohortStatusActive
	if !module.HasNext() {
		nextModuleID = nil
		nextStatus = models.CohortStatusConcluded
	}

	result := &dto.ClosureResult{
		CohortID:      cohort.ID,
		ModuleID:      module.ID,
		NextModuleID:  nextModuleID,
		CohortStatus:  nextStatus,
		ApprovedCount: len(approved),
		FailedCount:   len(enrolledIDs) - len(approved),
		AlreadyClosed: resuming,
	}

	var entries []models.CompletionEntry
	if !resuming {
		closedAt := time.Now().UTC()
		for _, id := range enrolledIDs {
			if existingSet[id] {
				continue
			}
			status := models.CompletionFailed
			if approved[id] {
				status = models.CompletionApproved
			}
			entries = append(entries, models.CompletionEntry{
				StudentID: id,
				CohortID:  cohort.ID,
				ModuleID:  module.ID,
				Status:    status,
				ClosedAt:  closedAt,
			})
		}
	}

	tx, err := s.cohorts.BeginTxx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open closure transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if len(entries) > 0 {
		written, err := s.history.BulkInsertTx(ctx, tx, entries)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write completion history")
		}
		result.HistoryWritten = written
	}

	if err := s.cohorts.AdvanceModuleTx(ctx, tx, cohort.ID, nextModuleID, nextStatus); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance cohort module")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit closure")
	}
	committed = true

	s.logger.Info("module closed",
		zap.String("turma_id", cohort.ID),
		zap.String("modulo_id", module.ID),
		zap.Int("aprovados", result.ApprovedCount),
		zap.Int("reprovados", result.FailedCount),
		zap.Int("historicos", result.HistoryWritten),
		zap.Bool("retomada", resuming),
	)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, previewCacheKey(cohort.ID)+"*"); err != nil {
			s.logger.Warn("failed to invalidate preview cache", zap.String("turma_id", cohort.ID), zap.Error(err))
		}
	}

	if !resuming {
		s.chargeApproved(ctx, result, existingSet, approved, enrolledIDs, req.ChargeCents)
		s.maybeBringForward(ctx, result, cohort, approved)
	}

	if len(result.BillingPending) > 0 {
		return result, appErrors.Clone(appErrors.ErrPartialCommit, fmt.Sprintf("closure committed, %d charge(s) pending reconciliation", len(result.BillingPending)))
	}
	return result, nil
}

// chargeApproved creates one billing charge per newly approved student,
// only when the caller supplied a charge amount. A closure without one
// never bills, which keeps batch auto-closures charge-free. Students who
// already had a history row before this closure are skipped, so a retried
// closure never double-charges.
func (s *TransitionService) chargeApproved(ctx context.Context, result *dto.ClosureResult, existing map[string]bool, approved map[string]bool, enrolledIDs []string, chargeCents *int64) {
	if s.billing == nil || chargeCents == nil || *chargeCents <= 0 {
		return
	}
	amount := *chargeCents

	for _, id := range enrolledIDs {
		if !approved[id] || existing[id] {
			continue
		}
		_, err := s.billing.CreateCharge(ctx, models.ChargeRequest{
			CohortID:    result.CohortID,
			StudentID:   id,
			AmountCents: amount,
		})
		if err == nil {
			result.ChargesCreated++
			s.metrics.RecordCharge("created")
			continue
		}

		s.metrics.RecordCharge("failed")
		result.BillingPending = append(result.BillingPending, id)
		s.logger.Error("charge failed after closure commit",
			zap.String("turma_id", result.CohortID),
			zap.String("aluno_id", id),
			zap.Error(err),
		)
		if s.reconciler != nil {
			entry := &models.BillingReconciliation{
				CohortID:    result.CohortID,
				StudentID:   id,
				ModuleID:    result.ModuleID,
				AmountCents: amount,
				Reason:      err.Error(),
			}
			if recErr := s.reconciler.Record(ctx, entry); recErr != nil {
				s.logger.Error("failed to record billing reconciliation",
					zap.String("turma_id", result.CohortID),
					zap.String("aluno_id", id),
					zap.Error(recErr),
				)
			}
		}
	}
}

// maybeBringForward re-enrolls the approved students into the cohort's new
// current module run when the feature is enabled. Enrollment rows that
// already exist are left untouched.
func (s *TransitionService) maybeBringForward(ctx context.Context, result *dto.ClosureResult, cohort *models.Cohort, approved map[string]bool) {
	if !s.bringForward || result.NextModuleID == nil || len(approved) == 0 {
		return
	}
	ids := make([]string, 0, len(approved))
	for id := range approved {
		ids = append(ids, id)
	}
	created, err := s.enrollments.CreateMissing(ctx, cohort.ID, cohort.SiteID, ids)
	if err != nil {
		s.logger.Warn("failed to bring students forward", zap.String("turma_id", cohort.ID), zap.Error(err))
		return
	}
	result.BroughtForward = created
}

// BringForward enrolls students approved in a previous module into this
// cohort's current run, skipping any already enrolled.
func (s *TransitionService) BringForward(ctx context.Context, cohortID string, req dto.BringForwardRequest) (*dto.BringForwardResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bring-forward payload")
	}

	cohort, err := s.loadActiveCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	studentIDs, err := s.history.ListApprovedStudents(ctx, req.PreviousModuleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to list approved students")
	}

	created, err := s.enrollments.CreateMissing(ctx, cohort.ID, cohort.SiteID, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
	}

	s.logger.Info("students brought forward",
		zap.String("turma_id", cohort.ID),
		zap.String("modulo_anterior_id", req.PreviousModuleID),
		zap.Int("matriculados", created),
	)
	return &dto.BringForwardResult{CohortID: cohort.ID, Enrolled: created}, nil
}

func (s *TransitionService) loadActiveCohort(ctx context.Context, cohortID string) (*models.Cohort, error) {
	cohort, err := s.cohorts.FindByID(ctx, cohortID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load cohort")
	}
	if cohort.Status != models.CohortStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cohort is %s, not active", cohort.Status))
	}
	return cohort, nil
}
