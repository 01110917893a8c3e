package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibuc-edu/transition-api/internal/dto"
	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type mockCohortRepo struct {
	db       *sqlx.DB
	cohorts  map[string]models.Cohort
	findErr  error
	advanced []struct {
		CohortID string
		ModuleID *string
		Status   models.CohortStatus
	}
	advanceErr error
}

func (m *mockCohortRepo) FindByID(ctx context.Context, id string) (*models.Cohort, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if c, ok := m.cohorts[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCohortRepo) AdvanceModuleTx(ctx context.Context, tx *sqlx.Tx, cohortID string, moduleID *string, status models.CohortStatus) error {
	if m.advanceErr != nil {
		return m.advanceErr
	}
	m.advanced = append(m.advanced, struct {
		CohortID string
		ModuleID *string
		Status   models.CohortStatus
	}{cohortID, moduleID, status})
	return nil
}

func (m *mockCohortRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, nil)
}

type mockCurriculumRepo struct {
	modules map[string]models.CurriculumModule
}

func (m *mockCurriculumRepo) FindByID(ctx context.Context, id string) (*models.CurriculumModule, error) {
	if mod, ok := m.modules[id]; ok {
		return &mod, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentRepo struct {
	students      []models.EnrolledStudent
	listErr       error
	broughtIDs    []string
	createMissing int
}

func (m *mockEnrollmentRepo) ListActiveByCohort(ctx context.Context, cohortID string) ([]models.EnrolledStudent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.students, nil
}

func (m *mockEnrollmentRepo) CreateMissing(ctx context.Context, cohortID, siteID string, studentIDs []string) (int, error) {
	m.broughtIDs = append(m.broughtIDs, studentIDs...)
	if m.createMissing > 0 {
		return m.createMissing, nil
	}
	return len(studentIDs), nil
}

type mockAttendanceRepo struct {
	delivered int
	presences []models.StudentPresenceCount
	countErr  error
}

func (m *mockAttendanceRepo) CountDeliveredLessons(ctx context.Context, cohortID, moduleID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.delivered, nil
}

func (m *mockAttendanceRepo) ListPresenceCounts(ctx context.Context, cohortID, moduleID string) ([]models.StudentPresenceCount, error) {
	return m.presences, nil
}

type mockHistoryRepo struct {
	existing []string
	approved []string
	inserted []models.CompletionEntry
}

func (m *mockHistoryRepo) ListExistingStudents(ctx context.Context, moduleID string, studentIDs []string) ([]string, error) {
	return m.existing, nil
}

func (m *mockHistoryRepo) BulkInsertTx(ctx context.Context, tx *sqlx.Tx, entries []models.CompletionEntry) (int, error) {
	m.inserted = append(m.inserted, entries...)
	return len(entries), nil
}

func (m *mockHistoryRepo) ListApprovedStudents(ctx context.Context, moduleID string) ([]string, error) {
	return m.approved, nil
}

type mockBilling struct {
	mu       sync.Mutex
	requests []models.ChargeRequest
	failFor  map[string]bool
}

func (m *mockBilling) CreateCharge(ctx context.Context, req models.ChargeRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[req.StudentID] {
		return "", errors.New("billing unavailable")
	}
	m.requests = append(m.requests, req)
	return "charge-" + req.StudentID, nil
}

type mockReconciler struct {
	entries []models.BillingReconciliation
}

func (m *mockReconciler) Record(ctx context.Context, entry *models.BillingReconciliation) error {
	m.entries = append(m.entries, *entry)
	return nil
}

type transitionFixture struct {
	svc         *TransitionService
	cohorts     *mockCohortRepo
	modules     *mockCurriculumRepo
	enrollments *mockEnrollmentRepo
	attendance  *mockAttendanceRepo
	history     *mockHistoryRepo
	billing     *mockBilling
	reconciler  *mockReconciler
	sqlMock     sqlmock.Sqlmock
	cleanup     func()
}

func strPtr(s string) *string { return &s }

func newTransitionFixture(t *testing.T, withBilling bool) *transitionFixture {
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(rawDB, "sqlmock")

	cohorts := &mockCohortRepo{
		db: db,
		cohorts: map[string]models.Cohort{
			"turma-1": {
				ID:              "turma-1",
				Name:            "Turma Alfa",
				SiteID:          "polo-1",
				Status:          models.CohortStatusActive,
				CurrentModuleID: strPtr("mod-1"),
			},
		},
	}
	modules := &mockCurriculumRepo{
		modules: map[string]models.CurriculumModule{
			"mod-1": {ID: "mod-1", Number: 1, Title: "Módulo 1", PlannedLessons: 10, NextModuleID: strPtr("mod-2")},
			"mod-2": {ID: "mod-2", Number: 2, Title: "Módulo 2", PlannedLessons: 10},
		},
	}
	enrollments := &mockEnrollmentRepo{
		students: []models.EnrolledStudent{
			{StudentID: "a1", Name: "Ana"},
			{StudentID: "a2", Name: "Bruno"},
			{StudentID: "a3", Name: "Carla"},
			{StudentID: "a4", Name: "Davi"},
			{StudentID: "a5", Name: "Eva"},
		},
	}
	attendance := &mockAttendanceRepo{
		delivered: 10,
		presences: []models.StudentPresenceCount{
			{StudentID: "a1", Presences: 10},
			{StudentID: "a2", Presences: 9},
			{StudentID: "a3", Presences: 8},
			{StudentID: "a4", Presences: 8},
			{StudentID: "a5", Presences: 4},
		},
	}
	history := &mockHistoryRepo{}

	f := &transitionFixture{
		cohorts:     cohorts,
		modules:     modules,
		enrollments: enrollments,
		attendance:  attendance,
		history:     history,
		sqlMock:     mock,
		cleanup:     func() { rawDB.Close() },
	}

	opts := TransitionServiceOptions{DefaultChargeCents: 5000}
	if withBilling {
		f.billing = &mockBilling{failFor: map[string]bool{}}
		f.reconciler = &mockReconciler{}
		opts.Billing = f.billing
		opts.Reconciler = f.reconciler
	}

	aggregator := NewAttendanceAggregator(cohorts, modules, enrollments, attendance)
	f.svc = NewTransitionService(cohorts, history, enrollments, aggregator, NewEligibilityEvaluator(75), opts, nil, nil)
	return f
}

func TestPreviewBlockedByIncompleteModule(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	// 8 of 10 planned lessons delivered, everyone present at all of them.
	f.attendance.delivered = 8
	f.attendance.presences = []models.StudentPresenceCount{
		{StudentID: "a1", Presences: 8}, {StudentID: "a2", Presences: 8},
		{StudentID: "a3", Presences: 8}, {StudentID: "a4", Presences: 8},
		{StudentID: "a5", Presences: 8},
	}

	preview, err := f.svc.Preview(context.Background(), "turma-1")
	require.NoError(t, err)

	assert.False(t, preview.ModuleComplete)
	assert.True(t, preview.AllApproved())
	assert.Contains(t, preview.BlockedReasons, "Módulo incompleto (8/10 aulas)")
	require.Len(t, preview.Students, 5)
	for _, st := range preview.Students {
		assert.Equal(t, 100.0, st.FrequencyPct)
	}
}

func TestPreviewReportsFailingStudents(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	preview, err := f.svc.Preview(context.Background(), "turma-1")
	require.NoError(t, err)

	assert.True(t, preview.ModuleComplete)
	assert.False(t, preview.AllApproved())
	assert.Contains(t, preview.BlockedReasons, "1 aluno(s) com baixa frequência")
	assert.Equal(t, "Módulo 1", preview.ModuleTitle)
}

func TestPreviewCohortNotFound(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	_, err := f.svc.Preview(context.Background(), "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPreviewCohortWithoutCurrentModule(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	cohort := f.cohorts.cohorts["turma-1"]
	cohort.CurrentModuleID = nil
	f.cohorts.cohorts["turma-1"] = cohort

	_, err := f.svc.Preview(context.Background(), "turma-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestPreviewSurfacesDependencyFailure(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	f.attendance.countErr = errors.New("connection refused")

	_, err := f.svc.Preview(context.Background(), "turma-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDependency.Code, appErr.Code)
}

func TestCloseWritesHistoryAndChargesApproved(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	charge := int64(5000)
	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4"},
		ChargeCents:        &charge,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.ApprovedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 5, result.HistoryWritten)
	assert.False(t, result.AlreadyClosed)
	require.NotNil(t, result.NextModuleID)
	assert.Equal(t, "mod-2", *result.NextModuleID)
	assert.Equal(t, models.CohortStatusActive, result.CohortStatus)

	// One history row per enrolled student, failure included.
	require.Len(t, f.history.inserted, 5)
	statuses := make(map[string]models.CompletionStatus)
	for _, entry := range f.history.inserted {
		statuses[entry.StudentID] = entry.Status
	}
	assert.Equal(t, models.CompletionApproved, statuses["a1"])
	assert.Equal(t, models.CompletionFailed, statuses["a5"])

	// Exactly one charge per approved student, none for the failed one.
	assert.Equal(t, 4, result.ChargesCreated)
	require.Len(t, f.billing.requests, 4)
	for _, req := range f.billing.requests {
		assert.Equal(t, int64(5000), req.AmountCents)
		assert.NotEqual(t, "a5", req.StudentID)
	}

	require.Len(t, f.cohorts.advanced, 1)
	assert.Equal(t, "mod-2", *f.cohorts.advanced[0].ModuleID)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestCloseRejectsStudentsOutsideCohort(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	_, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "intruso"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "intruso")
	assert.Empty(t, f.cohorts.advanced)
	assert.Empty(t, f.history.inserted)
}

func TestCloseLastModuleConcludesCohort(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	cohort := f.cohorts.cohorts["turma-1"]
	cohort.CurrentModuleID = strPtr("mod-2")
	f.cohorts.cohorts["turma-1"] = cohort

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4", "a5"},
	})
	require.NoError(t, err)

	assert.Nil(t, result.NextModuleID)
	assert.Equal(t, models.CohortStatusConcluded, result.CohortStatus)
	require.Len(t, f.cohorts.advanced, 1)
	assert.Nil(t, f.cohorts.advanced[0].ModuleID)
	assert.Equal(t, models.CohortStatusConcluded, f.cohorts.advanced[0].Status)
}

func TestCloseResumesInterruptedClosure(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	// Every enrolled student already holds a history row for this module.
	f.history.existing = []string{"a1", "a2", "a3", "a4", "a5"}

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4"},
	})
	require.NoError(t, err)

	assert.True(t, result.AlreadyClosed)
	assert.Equal(t, 0, result.HistoryWritten)
	assert.Empty(t, f.history.inserted)
	assert.Empty(t, f.billing.requests)
	require.Len(t, f.cohorts.advanced, 1)
}

func TestCloseSkipsChargesForStudentsClosedEarlier(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	// a1 and a2 were written by a previous partially-failed attempt; a
	// retry must not write or charge them again.
	f.history.existing = []string{"a1", "a2"}

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	charge := int64(5000)
	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4"},
		ChargeCents:        &charge,
	})
	require.NoError(t, err)

	assert.False(t, result.AlreadyClosed)
	assert.Equal(t, 3, result.HistoryWritten)
	assert.Equal(t, 2, result.ChargesCreated)
	for _, req := range f.billing.requests {
		assert.NotContains(t, []string{"a1", "a2"}, req.StudentID)
	}
}

func TestCloseBillingFailureIsPartialCommit(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	f.billing.failFor["a3"] = true

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	charge := int64(5000)
	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4"},
		ChargeCents:        &charge,
	})

	// The closure committed; the error only reports the pending billing.
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPartialCommit.Code, appErr.Code)

	require.NotNil(t, result)
	assert.Equal(t, 5, result.HistoryWritten)
	assert.Equal(t, 3, result.ChargesCreated)
	assert.Equal(t, []string{"a3"}, result.BillingPending)

	require.Len(t, f.reconciler.entries, 1)
	entry := f.reconciler.entries[0]
	assert.Equal(t, "a3", entry.StudentID)
	assert.Equal(t, "turma-1", entry.CohortID)
	assert.Equal(t, "mod-1", entry.ModuleID)
	assert.Equal(t, int64(5000), entry.AmountCents)
}

func TestCloseChargeRequiresBilling(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	charge := int64(7000)
	_, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1"},
		ChargeCents:        &charge,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, f.cohorts.advanced)
}

func TestCloseInactiveCohortRejected(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	cohort := f.cohorts.cohorts["turma-1"]
	cohort.Status = models.CohortStatusConcluded
	f.cohorts.cohorts["turma-1"] = cohort

	_, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestBringForwardEnrollsApprovedStudents(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	f.history.approved = []string{"a1", "a2", "a9"}
	f.enrollments.createMissing = 1

	result, err := f.svc.BringForward(context.Background(), "turma-1", dto.BringForwardRequest{PreviousModuleID: "mod-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Enrolled)
	assert.ElementsMatch(t, []string{"a1", "a2", "a9"}, f.enrollments.broughtIDs)
}

func TestBringForwardRequiresPreviousModule(t *testing.T) {
	f := newTransitionFixture(t, false)
	defer f.cleanup()

	_, err := f.svc.BringForward(context.Background(), "turma-1", dto.BringForwardRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCloseWithoutChargeAmountSkipsBilling(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	// No valor_cents on the request: the closure commits and nobody is
	// billed, even with billing enabled. Batch auto-closures rely on this.
	result, err := f.svc.Close(context.Background(), "turma-1", dto.CloseModuleRequest{
		ApprovedStudentIDs: []string{"a1", "a2", "a3", "a4"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.HistoryWritten)
	assert.Equal(t, 0, result.ChargesCreated)
	assert.Empty(t, result.BillingPending)
	assert.Empty(t, f.billing.requests)
	require.Len(t, f.cohorts.advanced, 1)
}

func TestPreviewSuggestsConfiguredChargeAmount(t *testing.T) {
	f := newTransitionFixture(t, true)
	defer f.cleanup()

	preview, err := f.svc.Preview(context.Background(), "turma-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), preview.SuggestedChargeCents)

	// Without a billing collaborator there is nothing to suggest.
	noBilling := newTransitionFixture(t, false)
	defer noBilling.cleanup()

	preview, err = noBilling.svc.Preview(context.Background(), "turma-1")
	require.NoError(t, err)
	assert.Zero(t, preview.SuggestedChargeCents)
}
