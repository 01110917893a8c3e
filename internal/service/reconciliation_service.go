package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibuc-edu/transition-api/internal/models"
	"github.com/ibuc-edu/transition-api/pkg/jobs"
)

type reconciliationRepo interface {
	Create(ctx context.Context, entry *models.BillingReconciliation) error
	ListPending(ctx context.Context, limit int) ([]models.BillingReconciliation, error)
	MarkResolved(ctx context.Context, id string) error
}

// ReconciliationService keeps billing failures visible and retries them in
// the background. A closure never rolls back because of billing; it hands
// the failed charge here instead.
type ReconciliationService struct {
	repo    reconciliationRepo
	billing chargeCreator
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewReconciliationService constructs the service and its retry queue.
func NewReconciliationService(repo reconciliationRepo, billing chargeCreator, metrics *MetricsService, queueCfg jobs.QueueConfig, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReconciliationService{
		repo:    repo,
		billing: billing,
		metrics: metrics,
		logger:  logger,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("billing-reconciliation", s.retryCharge, queueCfg)
	return s
}

// Start launches the retry workers and re-enqueues entries left pending by
// a previous run.
func (s *ReconciliationService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	pending, err := s.repo.ListPending(ctx, 200)
	if err != nil {
		s.logger.Warn("failed to load pending reconciliations", zap.Error(err))
		return
	}
	for i := range pending {
		entry := pending[i]
		if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Payload: entry}); err != nil {
			s.logger.Warn("failed to enqueue pending reconciliation", zap.String("id", entry.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("resumed pending reconciliations", zap.Int("count", len(pending)))
	}
}

// Stop drains the retry workers.
func (s *ReconciliationService) Stop() {
	s.queue.Stop()
}

// Record persists a billing failure and schedules a retry.
func (s *ReconciliationService) Record(ctx context.Context, entry *models.BillingReconciliation) error {
	if err := s.repo.Create(ctx, entry); err != nil {
		return err
	}
	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Payload: *entry}); err != nil {
		// The row is persisted; Start will pick it up on the next run.
		s.logger.Warn("failed to schedule reconciliation retry", zap.String("id", entry.ID), zap.Error(err))
	}
	return nil
}

// Pending lists unresolved entries for operational inspection.
func (s *ReconciliationService) Pending(ctx context.Context, limit int) ([]models.BillingReconciliation, error) {
	return s.repo.ListPending(ctx, limit)
}

func (s *ReconciliationService) retryCharge(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.BillingReconciliation)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	if s.billing == nil {
		return fmt.Errorf("billing client unavailable")
	}

	_, err := s.billing.CreateCharge(ctx, models.ChargeRequest{
		CohortID:    entry.CohortID,
		StudentID:   entry.StudentID,
		AmountCents: entry.AmountCents,
	})
	if err != nil {
		return fmt.Errorf("retry charge for aluno %s: %w", entry.StudentID, err)
	}

	if err := s.repo.MarkResolved(ctx, entry.ID); err != nil {
		// The charge went through; do not retry it. The row stays pending
		// for manual resolution.
		s.logger.Error("charge succeeded but entry not resolved", zap.String("id", entry.ID), zap.Error(err))
		return nil
	}
	s.metrics.RecordCharge("reconciled")
	s.logger.Info("billing charge reconciled",
		zap.String("id", entry.ID),
		zap.String("turma_id", entry.CohortID),
		zap.String("aluno_id", entry.StudentID),
	)
	return nil
}
