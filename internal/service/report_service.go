package service

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// DefaultReportCacheTTL is how long dashboard figures are served from cache.
const DefaultReportCacheTTL = 30 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportService builds the circulation reports.
type ReportService struct {
	reports  repository.ReportRepository
	ledger   *LoanService
	cache    repository.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewReportService creates a new ReportService. cache may be nil.
func NewReportService(reports repository.ReportRepository, ledger *LoanService, cache repository.Cache, cacheTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *ReportService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultReportCacheTTL
	}
	return &ReportService{
		reports:  reports,
		ledger:   ledger,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  m,
		logger:   logger.With().Str("service", "report").Logger(),
	}
}

// DashboardStats returns the desk counters, from cache when fresh.
// Cached figures are dropped on every issue and return, and on a day change.
func (s *ReportService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	today := s.ledger.Today()

	var stats domain.DashboardStats
	if s.getCached(ctx, repository.CacheKeys.Dashboard(), &stats) && stats.AsOf.Equal(today) {
		s.metrics.RecordCacheLookup(true)
		return &stats, nil
	}
	s.metrics.RecordCacheLookup(false)

	fresh, err := s.reports.DashboardStats(ctx, today)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to compute dashboard stats")
		return nil, persistenceError(err)
	}

	s.setCached(ctx, repository.CacheKeys.Dashboard(), fresh)
	s.metrics.SetOverdueLoans(fresh.OverdueLoans)
	return fresh, nil
}

// UserActivity returns per-borrower loan and fine totals, busiest first.
func (s *ReportService) UserActivity(ctx context.Context) ([]*domain.UserActivity, error) {
	var cached []*domain.UserActivity
	if s.getCached(ctx, repository.CacheKeys.UserActivity(), &cached) {
		return cached, nil
	}

	activity, err := s.reports.UserActivity(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to compute user activity")
		return nil, persistenceError(err)
	}

	s.setCached(ctx, repository.CacheKeys.UserActivity(), activity)
	return activity, nil
}

// BorrowerNotices returns a borrower's overdue and due-soon loans.
func (s *ReportService) BorrowerNotices(ctx context.Context, userID int64) (*domain.BorrowerNotices, error) {
	open, err := s.ledger.ListLoansForUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	notices := &domain.BorrowerNotices{
		UserID:  userID,
		Overdue: []*domain.LoanView{},
		DueSoon: []*domain.LoanView{},
		AsOf:    s.ledger.Today(),
	}
	for _, v := range open {
		switch v.State {
		case domain.LoanOverdue:
			notices.Overdue = append(notices.Overdue, v)
		case domain.LoanDueSoon:
			notices.DueSoon = append(notices.DueSoon, v)
		}
	}
	return notices, nil
}

func (s *ReportService) getCached(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *ReportService) setCached(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
}
