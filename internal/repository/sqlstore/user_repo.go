package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// userRepository implements repository.UserRepository.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ds := r.db.insertInto(tableUsers).Rows(goqu.Record{
		"username":      user.Username,
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"email":         user.Email,
		"phone":         user.Phone,
		"role":          string(user.Role),
		"password_hash": user.PasswordHash,
		"is_active":     boolToInt(user.IsActive),
		"created_at":    formatTime(user.CreatedAt),
		"updated_at":    formatTime(user.UpdatedAt),
	})

	id, err := r.db.insert(ctx, ds)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", domain.ErrUserAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getBy(ctx, goqu.C("id").Eq(id))
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, goqu.C("username").Eq(username))
}

func (r *userRepository) getBy(ctx context.Context, cond goqu.Expression) (*domain.User, error) {
	ds := r.db.from(tableUsers).
		Select(columns("", userColumns...)...).
		Where(cond)

	var row userRow
	if err := r.db.get(ctx, &row, ds); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return row.toDomain(), nil
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()

	ds := r.db.update(tableUsers).
		Set(goqu.Record{
			"first_name":    user.FirstName,
			"last_name":     user.LastName,
			"email":         user.Email,
			"phone":         user.Phone,
			"role":          string(user.Role),
			"password_hash": user.PasswordHash,
			"is_active":     boolToInt(user.IsActive),
			"updated_at":    formatTime(user.UpdatedAt),
		}).
		Where(goqu.C("id").Eq(user.ID))

	if err := r.db.execAffecting(ctx, ds); err != nil {
		if err == repository.ErrConflict {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// List returns users ordered by username.
func (r *userRepository) List(ctx context.Context, activeOnly bool) ([]*domain.User, error) {
	ds := r.db.from(tableUsers).
		Select(columns("", userColumns...)...).
		Order(goqu.C("username").Asc())

	if activeOnly {
		ds = ds.Where(goqu.C("is_active").Eq(1))
	}

	var rows []userRow
	if err := r.db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toDomain())
	}

	return users, nil
}

// ExistsByUsername checks if a user with the given username exists.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ds := r.db.from(tableUsers).
		Select(goqu.COUNT("*")).
		Where(goqu.C("username").Eq(username))

	var n int64
	if err := r.db.get(ctx, &n, ds); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}

	return n > 0, nil
}

var _ repository.UserRepository = (*userRepository)(nil)
