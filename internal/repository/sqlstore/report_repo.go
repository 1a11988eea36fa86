package sqlstore

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// reportRepository implements repository.ReportRepository.
type reportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *DB) repository.ReportRepository {
	return &reportRepository{db: db}
}

// DashboardStats counts the circulation desk figures.
func (r *reportRepository) DashboardStats(ctx context.Context, today domain.Date) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{AsOf: today}

	var books struct {
		Count     int64 `db:"active_books"`
		Available int64 `db:"available_copies"`
	}
	booksDS := r.db.from(tableBooks).
		Select(
			goqu.COUNT("*").As("active_books"),
			goqu.L("COALESCE(SUM(available_copies), 0)").As("available_copies"),
		).
		Where(goqu.C("is_active").Eq(1))
	if err := r.db.get(ctx, &books, booksDS); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}
	stats.ActiveBooks = books.Count
	stats.AvailableCopies = books.Available

	counts := []struct {
		dest *int64
		ds   *goqu.SelectDataset
	}{
		{&stats.ActiveUsers, r.db.from(tableUsers).Select(goqu.COUNT("*")).Where(goqu.C("is_active").Eq(1))},
		{&stats.ActiveLoans, r.db.from(tableLoans).Select(goqu.COUNT("*")).Where(goqu.C("returned").Eq(0))},
		{&stats.OverdueLoans, r.db.from(tableLoans).Select(goqu.COUNT("*")).Where(
			goqu.C("returned").Eq(0),
			goqu.C("due_date").Lt(today.String()),
		)},
	}
	for _, c := range counts {
		if err := r.db.get(ctx, c.dest, c.ds); err != nil {
			return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
		}
	}

	return stats, nil
}

type userActivityRow struct {
	UserID      int64  `db:"user_id"`
	Username    string `db:"username"`
	FirstName   string `db:"first_name"`
	LastName    string `db:"last_name"`
	Role        string `db:"role"`
	TotalLoans  int64  `db:"total_loans"`
	ActiveLoans int64  `db:"active_loans"`
	TotalFines  int64  `db:"total_fines"`
}

// UserActivity aggregates loans per active borrower, busiest first.
func (r *reportRepository) UserActivity(ctx context.Context) ([]*domain.UserActivity, error) {
	ds := r.db.from(goqu.T(tableUsers).As("u")).
		Join(goqu.T(tableLoans).As("l"), goqu.On(goqu.I("l.user_id").Eq(goqu.I("u.id")))).
		Select(
			goqu.I("u.id").As("user_id"),
			goqu.I("u.username").As("username"),
			goqu.I("u.first_name").As("first_name"),
			goqu.I("u.last_name").As("last_name"),
			goqu.I("u.role").As("role"),
			goqu.COUNT(goqu.I("l.id")).As("total_loans"),
			goqu.L("SUM(CASE WHEN l.returned = 0 THEN 1 ELSE 0 END)").As("active_loans"),
			goqu.L("COALESCE(SUM(l.fine_cents), 0)").As("total_fines"),
		).
		Where(goqu.I("u.is_active").Eq(1)).
		GroupBy(goqu.I("u.id"), goqu.I("u.username"), goqu.I("u.first_name"), goqu.I("u.last_name"), goqu.I("u.role")).
		Order(goqu.I("total_loans").Desc(), goqu.I("u.username").Asc())

	var rows []userActivityRow
	if err := r.db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}

	out := make([]*domain.UserActivity, 0, len(rows))
	for _, row := range rows {
		u := domain.User{Username: row.Username, FirstName: row.FirstName, LastName: row.LastName}
		out = append(out, &domain.UserActivity{
			UserID:      row.UserID,
			Username:    row.Username,
			FullName:    u.FullName(),
			Role:        domain.Role(row.Role),
			TotalLoans:  row.TotalLoans,
			ActiveLoans: row.ActiveLoans,
			TotalFines:  domain.Money(row.TotalFines),
		})
	}

	return out, nil
}

var _ repository.ReportRepository = (*reportRepository)(nil)
