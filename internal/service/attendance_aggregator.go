package service

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type cohortReader interface {
	FindByID(ctx context.Context, id string) (*models.Cohort, error)
}

type curriculumReader interface {
	FindByID(ctx context.Context, id string) (*models.CurriculumModule, error)
}

type enrollmentLister interface {
	ListActiveByCohort(ctx context.Context, cohortID string) ([]models.EnrolledStudent, error)
}

type attendanceReader interface {
	CountDeliveredLessons(ctx context.Context, cohortID, moduleID string) (int, error)
	ListPresenceCounts(ctx context.Context, cohortID, moduleID string) ([]models.StudentPresenceCount, error)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// cohortSnapshot is everything the engine needs to evaluate one cohort's
// current module: the cohort, the module, and the attendance aggregates.
type cohortSnapshot struct {
	Cohort    *models.Cohort
	Module    *models.CurriculumModule
	Delivered int
	Students  []models.EnrolledStudent
	Presences []models.StudentPresenceCount
}

// AttendanceAggregator assembles cohort snapshots from the read-side
// repositories. Backing-store failures surface as dependency errors; the
// caller never sees a silently empty student list.
type AttendanceAggregator struct {
	cohorts     cohortReader
	modules     curriculumReader
	enrollments enrollmentLister
	attendance  attendanceReader
}

// NewAttendanceAggregator constructs the aggregator.
func NewAttendanceAggregator(cohorts cohortReader, modules curriculumReader, enrollments enrollmentLister, attendance attendanceReader) *AttendanceAggregator {
	return &AttendanceAggregator{cohorts: cohorts, modules: modules, enrollments: enrollments, attendance: attendance}
}

// Snapshot loads the cohort, its current module and the attendance
// aggregates bounded to that module's delivered lessons.
func (a *AttendanceAggregator) Snapshot(ctx context.Context, cohortID string) (*cohortSnapshot, error) {
	cohort, err := a.cohorts.FindByID(ctx, cohortID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load cohort")
	}
	if !cohort.HasCurrentModule() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cohort has no current module")
	}

	moduleID := *cohort.CurrentModuleID
	module, err := a.modules.FindByID(ctx, moduleID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "current module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to load module")
	}

	snapshot := &cohortSnapshot{Cohort: cohort, Module: module}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		delivered, err := a.attendance.CountDeliveredLessons(gctx, cohortID, moduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to count delivered lessons")
		}
		snapshot.Delivered = delivered
		return nil
	})
	g.Go(func() error {
		students, err := a.enrollments.ListActiveByCohort(gctx, cohortID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to list enrolled students")
		}
		snapshot.Students = students
		return nil
	})
	g.Go(func() error {
		presences, err := a.attendance.ListPresenceCounts(gctx, cohortID, moduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "failed to aggregate presences")
		}
		snapshot.Presences = presences
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return snapshot, nil
}
