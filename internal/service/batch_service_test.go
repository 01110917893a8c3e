package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibuc-edu/transition-api/internal/dto"
	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type mockEngine struct {
	mu        sync.Mutex
	previews  map[string]*dto.TransitionPreview
	prevErrs  map[string]error
	closeErrs map[string]error
	partials  map[string]*dto.ClosureResult
	previewed []string
	closed    []string
	lastReqs  map[string]dto.CloseModuleRequest
}

func (m *mockEngine) Preview(ctx context.Context, cohortID string) (*dto.TransitionPreview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewed = append(m.previewed, cohortID)
	if err, ok := m.prevErrs[cohortID]; ok {
		return nil, err
	}
	return m.previews[cohortID], nil
}

func (m *mockEngine) Close(ctx context.Context, cohortID string, req dto.CloseModuleRequest) (*dto.ClosureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastReqs == nil {
		m.lastReqs = make(map[string]dto.CloseModuleRequest)
	}
	m.lastReqs[cohortID] = req
	if err, ok := m.closeErrs[cohortID]; ok {
		return m.partials[cohortID], err
	}
	m.closed = append(m.closed, cohortID)
	return &dto.ClosureResult{CohortID: cohortID, HistoryWritten: len(req.ApprovedStudentIDs)}, nil
}

func eligiblePreview(cohortID string, studentIDs ...string) *dto.TransitionPreview {
	p := &dto.TransitionPreview{
		CohortID:         cohortID,
		ModuleID:         "mod-1",
		PlannedLessons:   10,
		LessonsDelivered: 10,
		ModuleComplete:   true,
	}
	for _, id := range studentIDs {
		p.Students = append(p.Students, dto.PreviewStudent{StudentID: id, Name: id, FrequencyPct: 100, Approved: true})
	}
	return p
}

// newBatchFixture wires the orchestrator over an active, closable cohort
// for every given id. Tests that need another lifecycle state mutate the
// returned cohort store.
func newBatchFixture(engine *mockEngine, cohortIDs ...string) (*BatchService, *mockCohortRepo) {
	cohorts := &mockCohortRepo{cohorts: make(map[string]models.Cohort, len(cohortIDs))}
	for _, id := range cohortIDs {
		cohorts.cohorts[id] = models.Cohort{ID: id, Status: models.CohortStatusActive, CurrentModuleID: strPtr("mod-1")}
	}
	return NewBatchService(cohorts, engine, nil, 2, nil, nil), cohorts
}

func TestCloseBatchIsolatesFailures(t *testing.T) {
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-a": eligiblePreview("turma-a", "s1", "s2"),
			"turma-b": eligiblePreview("turma-b", "s3"),
			"turma-c": eligiblePreview("turma-c", "s4"),
		},
		closeErrs: map[string]error{"turma-b": errors.New("deadlock detected")},
	}
	svc, _ := newBatchFixture(engine, "turma-a", "turma-b", "turma-c")

	result, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{
		CohortIDs: []string{"turma-a", "turma-b", "turma-c"},
	})
	require.NoError(t, err)

	// One failing cohort never stops its siblings.
	assert.ElementsMatch(t, []string{"turma-a", "turma-c"}, engine.closed)
	assert.Equal(t, 3, result.EligibleCount)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)

	require.Len(t, result.PerCohort, 3)
	assert.Equal(t, dto.BatchStateProcessed, result.PerCohort["turma-a"].State)
	assert.Equal(t, dto.BatchStateFailed, result.PerCohort["turma-b"].State)
	assert.Contains(t, result.PerCohort["turma-b"].Error, "deadlock")
	assert.Equal(t, dto.BatchStateProcessed, result.PerCohort["turma-c"].State)
}

func TestCloseBatchBlockedVersusFailed(t *testing.T) {
	incomplete := eligiblePreview("turma-inc", "s1")
	incomplete.ModuleComplete = false
	incomplete.LessonsDelivered = 7

	lowFreq := eligiblePreview("turma-low", "s2", "s3")
	lowFreq.Students[1].Approved = false
	lowFreq.Students[1].FrequencyPct = 40

	empty := eligiblePreview("turma-empty")

	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-inc":   incomplete,
			"turma-low":   lowFreq,
			"turma-empty": empty,
		},
		prevErrs: map[string]error{
			"turma-down": appErrors.Clone(appErrors.ErrDependency, "attendance store unreachable"),
		},
	}
	svc, _ := newBatchFixture(engine, "turma-inc", "turma-low", "turma-empty", "turma-down")

	result, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{
		CohortIDs: []string{"turma-inc", "turma-low", "turma-empty", "turma-down"},
	})
	require.NoError(t, err)

	assert.Empty(t, engine.closed)
	assert.Equal(t, 0, result.EligibleCount)
	assert.Equal(t, 3, result.BlockedCount)
	assert.Equal(t, 1, result.FailedCount)

	// Business ineligibility reads as blocked with a reason; a transport
	// failure reads as failed with the error, never the other way around.
	assert.Equal(t, dto.BatchStateBlocked, result.PerCohort["turma-inc"].State)
	assert.Equal(t, "Módulo incompleto (7/10 aulas)", result.PerCohort["turma-inc"].Reason)

	low := result.PerCohort["turma-low"]
	assert.Equal(t, dto.BatchStateBlocked, low.State)
	require.Len(t, low.FailingStudents, 1)
	assert.Equal(t, 40.0, low.FailingStudents[0].FrequencyPct)

	assert.Equal(t, dto.BatchStateBlocked, result.PerCohort["turma-empty"].State)
	assert.Equal(t, "Turma sem alunos matriculados", result.PerCohort["turma-empty"].Reason)

	down := result.PerCohort["turma-down"]
	assert.Equal(t, dto.BatchStateFailed, down.State)
	assert.Contains(t, down.Error, "attendance store unreachable")
}

func TestCloseBatchBlocksNonClosableCohorts(t *testing.T) {
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-ok": eligiblePreview("turma-ok", "s1"),
		},
	}
	svc, cohorts := newBatchFixture(engine, "turma-ok", "turma-inativa", "turma-sem-modulo")

	inactive := cohorts.cohorts["turma-inativa"]
	inactive.Status = models.CohortStatusInactive
	cohorts.cohorts["turma-inativa"] = inactive

	noModule := cohorts.cohorts["turma-sem-modulo"]
	noModule.CurrentModuleID = nil
	cohorts.cohorts["turma-sem-modulo"] = noModule

	result, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{
		CohortIDs: []string{"turma-ok", "turma-inativa", "turma-sem-modulo", "turma-fantasma"},
	})
	require.NoError(t, err)

	// Lifecycle ineligibility reads as blocked and is decided before any
	// preview or closure is attempted for the cohort.
	assert.Equal(t, dto.BatchStateBlocked, result.PerCohort["turma-inativa"].State)
	assert.Equal(t, "Turma inativa, não ativa", result.PerCohort["turma-inativa"].Reason)
	assert.Equal(t, dto.BatchStateBlocked, result.PerCohort["turma-sem-modulo"].State)
	assert.Equal(t, "Turma sem módulo atual", result.PerCohort["turma-sem-modulo"].Reason)
	assert.ElementsMatch(t, []string{"turma-ok"}, engine.previewed)
	assert.ElementsMatch(t, []string{"turma-ok"}, engine.closed)

	// An id that resolves to no cohort at all is a failure, not blocked.
	ghost := result.PerCohort["turma-fantasma"]
	assert.Equal(t, dto.BatchStateFailed, ghost.State)
	assert.Contains(t, ghost.Error, "cohort not found")

	assert.Equal(t, 1, result.EligibleCount)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 2, result.BlockedCount)
	assert.Equal(t, 1, result.FailedCount)
}

func TestCloseBatchApprovesAllStudentsAndForwardsCharge(t *testing.T) {
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-a": eligiblePreview("turma-a", "s1", "s2", "s3"),
		},
	}
	svc, _ := newBatchFixture(engine, "turma-a")

	charge := int64(5000)
	_, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{
		CohortIDs:   []string{"turma-a"},
		ChargeCents: &charge,
	})
	require.NoError(t, err)

	req := engine.lastReqs["turma-a"]
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, req.ApprovedStudentIDs)
	require.NotNil(t, req.ChargeCents)
	assert.Equal(t, int64(5000), *req.ChargeCents)
}

func TestCloseBatchPartialCommitCountsAsProcessed(t *testing.T) {
	partial := &dto.ClosureResult{CohortID: "turma-a", HistoryWritten: 3, BillingPending: []string{"s2"}}
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-a": eligiblePreview("turma-a", "s1", "s2", "s3"),
		},
		closeErrs: map[string]error{"turma-a": appErrors.Clone(appErrors.ErrPartialCommit, "")},
		partials:  map[string]*dto.ClosureResult{"turma-a": partial},
	}
	svc, _ := newBatchFixture(engine, "turma-a")

	result, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{CohortIDs: []string{"turma-a"}})
	require.NoError(t, err)

	outcome := result.PerCohort["turma-a"]
	assert.Equal(t, dto.BatchStateProcessed, outcome.State)
	assert.NotEmpty(t, outcome.Error)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, []string{"s2"}, outcome.Result.BillingPending)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestCloseBatchCancelledBetweenCohorts(t *testing.T) {
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-a": eligiblePreview("turma-a", "s1"),
			"turma-b": eligiblePreview("turma-b", "s2"),
		},
	}
	svc, _ := newBatchFixture(engine, "turma-a", "turma-b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.CloseBatch(ctx, dto.BatchCloseRequest{CohortIDs: []string{"turma-a", "turma-b"}})
	require.NoError(t, err)

	assert.Empty(t, engine.closed)
	for _, id := range []string{"turma-a", "turma-b"} {
		assert.Equal(t, dto.BatchStateNotProcessed, result.PerCohort[id].State)
	}
}

func TestCloseBatchValidatesPayload(t *testing.T) {
	svc, _ := newBatchFixture(&mockEngine{})

	_, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCloseBatchDeduplicatesInput(t *testing.T) {
	engine := &mockEngine{
		previews: map[string]*dto.TransitionPreview{
			"turma-a": eligiblePreview("turma-a", "s1"),
		},
	}
	svc, _ := newBatchFixture(engine, "turma-a")

	result, err := svc.CloseBatch(context.Background(), dto.BatchCloseRequest{
		CohortIDs: []string{"turma-a", "turma-a", "turma-a"},
	})
	require.NoError(t, err)

	assert.Len(t, engine.closed, 1)
	assert.Len(t, result.PerCohort, 1)
}
