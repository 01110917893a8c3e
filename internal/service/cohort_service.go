package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ibuc-edu/transition-api/internal/models"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
)

type cohortLister interface {
	cohortReader
	List(ctx context.Context, filter models.CohortFilter) ([]models.Cohort, int, error)
}

// CohortService serves cohort reads for the admin surface.
type CohortService struct {
	repo   cohortLister
	logger *zap.Logger
}

// NewCohortService constructs the service.
func NewCohortService(repo cohortLister, logger *zap.Logger) *CohortService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CohortService{repo: repo, logger: logger}
}

// List returns cohorts matching the filter alongside paging metadata.
func (s *CohortService) List(ctx context.Context, filter models.CohortFilter) ([]models.Cohort, models.Pagination, error) {
	cohorts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohorts")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return cohorts, models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one cohort by id.
func (s *CohortService) Get(ctx context.Context, id string) (*models.Cohort, error) {
	cohort, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
	}
	return cohort, nil
}
