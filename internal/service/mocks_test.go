package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// MockTx runs fn directly. Tests that need real rollback use SQLite.
type MockTx struct {
	calls int
}

func (m *MockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// MockBookRepository is a mock implementation of repository.BookRepository.
type MockBookRepository struct {
	mu        sync.Mutex
	books     map[int64]*domain.Book
	nextID    int64
	adjustErr error
	getErr    error

	// beforeSetTotal runs ahead of SetTotalCopies, standing in for a
	// concurrent writer.
	beforeSetTotal func(id int64)
}

func NewMockBookRepository() *MockBookRepository {
	return &MockBookRepository{books: make(map[int64]*domain.Book), nextID: 1}
}

// Add stores a copy of b and returns its ID.
func (m *MockBookRepository) Add(b *domain.Book) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	cp.ID = m.nextID
	m.nextID++
	m.books[cp.ID] = &cp
	return cp.ID
}

// Snapshot returns a copy of the stored book.
func (m *MockBookRepository) Snapshot(id int64) domain.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.books[id]
}

func (m *MockBookRepository) Create(ctx context.Context, book *domain.Book) error {
	book.ID = m.Add(book)
	return nil
}

func (m *MockBookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.books[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockBookRepository) Update(ctx context.Context, book *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[book.ID]
	if !ok {
		return repository.ErrNotFound
	}
	b.Title, b.Author, b.Category, b.ISBN, b.IsActive = book.Title, book.Author, book.Category, book.ISBN, book.IsActive
	return nil
}

func (m *MockBookRepository) SetTotalCopies(ctx context.Context, id int64, total int) error {
	if m.beforeSetTotal != nil {
		m.beforeSetTotal(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok || total < b.TotalCopies-b.AvailableCopies {
		return repository.ErrConflict
	}
	b.AvailableCopies += total - b.TotalCopies
	b.TotalCopies = total
	return nil
}

func (m *MockBookRepository) AdjustAvailableCopies(ctx context.Context, id int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return m.adjustErr
	}
	b, ok := m.books[id]
	if !ok {
		return repository.ErrConflict
	}
	next := b.AvailableCopies + delta
	if next < 0 || next > b.TotalCopies {
		return repository.ErrConflict
	}
	b.AvailableCopies = next
	return nil
}

func (m *MockBookRepository) ExistsActiveISBN(ctx context.Context, isbn string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN == isbn && b.IsActive && b.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockBookRepository) List(ctx context.Context, filter repository.BookFilter) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Book
	for _, b := range m.books {
		if !filter.IncludeInactive && !b.IsActive {
			continue
		}
		if filter.AvailableOnly && b.AvailableCopies == 0 {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[int64]*domain.User), nextID: 1}
}

// Add stores a copy of u and returns its ID.
func (m *MockUserRepository) Add(u *domain.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	cp.ID = m.nextID
	m.nextID++
	m.users[cp.ID] = &cp
	return cp.ID
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	for _, u := range m.users {
		if u.Username == user.Username {
			m.mu.Unlock()
			return domain.ErrUserAlreadyExists
		}
	}
	m.mu.Unlock()
	user.ID = m.Add(user)
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, activeOnly bool) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.users {
		if activeOnly && !u.IsActive {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}

// MockLoanRepository is a mock implementation of repository.LoanRepository.
// It joins titles and names from the book and user mocks.
type MockLoanRepository struct {
	mu        sync.Mutex
	loans     map[int64]*domain.Loan
	nextID    int64
	books     *MockBookRepository
	users     *MockUserRepository
	createErr error
	listErr   error
}

func NewMockLoanRepository(books *MockBookRepository, users *MockUserRepository) *MockLoanRepository {
	return &MockLoanRepository{
		loans:  make(map[int64]*domain.Loan),
		nextID: 1,
		books:  books,
		users:  users,
	}
}

// Snapshot returns a copy of the stored loan.
func (m *MockLoanRepository) Snapshot(id int64) domain.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.loans[id]
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	loan.ID = m.nextID
	m.nextID++
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MockLoanRepository) details(l *domain.Loan) *domain.LoanDetails {
	d := &domain.LoanDetails{Loan: *l}
	if b, err := m.books.GetByID(context.Background(), l.BookID); err == nil {
		d.BookTitle, d.BookISBN = b.Title, b.ISBN
	}
	if u, err := m.users.GetByID(context.Background(), l.UserID); err == nil {
		d.BorrowerUsername, d.BorrowerName = u.Username, u.FullName()
	}
	return d
}

func (m *MockLoanRepository) GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	l, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.details(l), nil
}

func (m *MockLoanRepository) MarkReturned(ctx context.Context, id int64, returnDate domain.Date, fine domain.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok || l.Returned {
		return repository.ErrConflict
	}
	l.Returned = true
	l.ReturnDate = domain.DatePtr(returnDate)
	l.FineAmount = fine
	return nil
}

func (m *MockLoanRepository) List(ctx context.Context, filter repository.LoanFilter) ([]*domain.LoanDetails, error) {
	m.mu.Lock()
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	var matched []*domain.Loan
	for _, l := range m.loans {
		if filter.OpenOnly && l.Returned {
			continue
		}
		if filter.DueBefore != nil && !l.DueDate.Before(*filter.DueBefore) {
			continue
		}
		if filter.DueOnOrBefore != nil && l.DueDate.After(*filter.DueOnOrBefore) {
			continue
		}
		if filter.UserID != 0 && l.UserID != filter.UserID {
			continue
		}
		if filter.BookID != 0 && l.BookID != filter.BookID {
			continue
		}
		cp := *l
		matched = append(matched, &cp)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if filter.OrderByDueDate {
			return matched[i].DueDate.Before(matched[j].DueDate)
		}
		return matched[i].ID > matched[j].ID
	})

	out := make([]*domain.LoanDetails, 0, len(matched))
	for _, l := range matched {
		out = append(out, m.details(l))
	}
	return out, nil
}

func (m *MockLoanRepository) countOpen(match func(*domain.Loan) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.loans {
		if !l.Returned && match(l) {
			n++
		}
	}
	return n
}

func (m *MockLoanRepository) CountOpenByBook(ctx context.Context, bookID int64) (int64, error) {
	return m.countOpen(func(l *domain.Loan) bool { return l.BookID == bookID }), nil
}

func (m *MockLoanRepository) CountOpenByUser(ctx context.Context, userID int64) (int64, error) {
	return m.countOpen(func(l *domain.Loan) bool { return l.UserID == userID }), nil
}

// MockReportRepository counts calls so cache hits can be observed.
type MockReportRepository struct {
	stats         domain.DashboardStats
	activity      []*domain.UserActivity
	dashboardHits int
}

func (m *MockReportRepository) DashboardStats(ctx context.Context, today domain.Date) (*domain.DashboardStats, error) {
	m.dashboardHits++
	s := m.stats
	s.AsOf = today
	return &s, nil
}

func (m *MockReportRepository) UserActivity(ctx context.Context) ([]*domain.UserActivity, error) {
	return m.activity, nil
}

// fixedRefs hands out sequential references.
type fixedRefs struct {
	mu sync.Mutex
	n  int
}

func (f *fixedRefs) NewReference(time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("REF-%03d", f.n)
}
