package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// UserService handles the borrower directory and credentials.
type UserService struct {
	userRepo   repository.UserRepository
	loans      ActiveLoanChecker
	tx         repository.TxManager
	cache      repository.Cache
	bcryptCost int
	logger     zerolog.Logger
}

// NewUserService creates a new UserService. cache may be nil.
// A bcryptCost of 0 uses bcrypt.DefaultCost.
func NewUserService(userRepo repository.UserRepository, loans ActiveLoanChecker, tx repository.TxManager, cache repository.Cache, bcryptCost int, logger zerolog.Logger) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		userRepo:   userRepo,
		loans:      loans,
		tx:         tx,
		cache:      cache,
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("service", "user").Logger(),
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Role      domain.Role
}

// CreateUserOutput contains the result of creating a user.
type CreateUserOutput struct {
	User *domain.User
}

// Create registers a new account.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	// Validate input
	if err := s.validateCreateInput(input); err != nil {
		return nil, err
	}

	// Check if username already exists
	exists, err := s.userRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
		return nil, persistenceError(err)
	}
	if exists {
		return nil, fmt.Errorf("%w: username '%s'", domain.ErrUserAlreadyExists, input.Username)
	}

	// Hash password
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", domain.ErrPersistenceFailure)
	}

	user := domain.NewUser(input.Username, string(passwordHash), input.Role)
	user.FirstName = strings.TrimSpace(input.FirstName)
	user.LastName = strings.TrimSpace(input.LastName)
	user.Email = input.Email
	user.Phone = strings.TrimSpace(input.Phone)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, fmt.Errorf("%w: username '%s'", domain.ErrUserAlreadyExists, input.Username)
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create user")
		return nil, persistenceError(err)
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Str("role", string(user.Role)).
		Msg("user created")

	return &CreateUserOutput{User: user}, nil
}

// Authenticate verifies user credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failed to load user during authentication")
			return nil, persistenceError(err)
		}
		// Log but don't expose whether username exists
		s.logger.Debug().Str("username", username).Msg("user not found during authentication")
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Str("username", username).Msg("invalid password during authentication")
		return nil, domain.ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Str("username", username).Msg("inactive user attempted authentication")
		return nil, domain.NewDomainError(domain.ErrInactiveEntity, "account is deactivated", fmt.Sprintf("user %d", user.ID))
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user authenticated")

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		}
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFound(err, "user "+username)
	}
	return user, nil
}

// UpdateProfileInput contains the editable profile fields.
type UpdateProfileInput struct {
	UserID    int64
	FirstName string
	LastName  string
	Email     string
	Phone     string

	// Role is left unchanged when empty.
	Role domain.Role
}

// UpdateProfile changes a user's name, contact details and role.
func (s *UserService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*domain.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return nil, ErrInvalidEmail
		}
	}

	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", input.UserID))
	}

	user.FirstName = strings.TrimSpace(input.FirstName)
	user.LastName = strings.TrimSpace(input.LastName)
	user.Email = input.Email
	user.Phone = strings.TrimSpace(input.Phone)
	if input.Role != "" {
		role, err := domain.ParseRole(string(input.Role))
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", user.ID))
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().Int64("user_id", user.ID).Msg("user profile updated")
	return user, nil
}

// UpdatePasswordInput contains the data needed to update a password.
type UpdatePasswordInput struct {
	UserID      int64
	OldPassword string
	NewPassword string
}

// UpdatePassword changes a user's password after checking the old one.
func (s *UserService) UpdatePassword(ctx context.Context, input UpdatePasswordInput) error {
	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return notFound(err, fmt.Sprintf("user %d", input.UserID))
	}

	// Verify old password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.OldPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}

	return s.setPassword(ctx, user, input.NewPassword)
}

// ResetPassword sets a new password without the old one. Librarians only.
func (s *UserService) ResetPassword(ctx context.Context, userID int64, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, fmt.Sprintf("user %d", userID))
	}
	return s.setPassword(ctx, user, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, user *domain.User, password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password", domain.ErrPersistenceFailure)
	}

	user.PasswordHash = string(newHash)
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return notFound(err, fmt.Sprintf("user %d", user.ID))
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("password updated")
	return nil
}

// SetActive sets the active status of a user. A borrower holding a book
// cannot be deactivated.
func (s *UserService) SetActive(ctx context.Context, userID int64, isActive bool) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return notFound(err, fmt.Sprintf("user %d", userID))
		}
		if user.IsActive == isActive {
			return nil
		}

		if !isActive {
			busy, err := s.loans.BorrowerHasActiveLoans(ctx, userID)
			if err != nil {
				return err
			}
			if busy {
				return domain.NewDomainError(domain.ErrHasActiveLoans, "borrower still holds books", fmt.Sprintf("user %d", userID))
			}
		}

		user.IsActive = isActive
		user.UpdatedAt = time.Now().UTC()
		if err := s.userRepo.Update(ctx, user); err != nil {
			return notFound(err, fmt.Sprintf("user %d", userID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().
		Int64("user_id", userID).
		Bool("is_active", isActive).
		Msg("user active status updated")

	return nil
}

// List returns users ordered by username.
func (s *UserService) List(ctx context.Context, activeOnly bool) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, persistenceError(err)
	}
	return users, nil
}

// validateCreateInput validates the input for creating a user.
func (s *UserService) validateCreateInput(input CreateUserInput) error {
	// Validate username
	if len(input.Username) < 3 || len(input.Username) > 255 {
		return ErrInvalidUsername
	}

	// Validate email
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return ErrInvalidEmail
	}

	// Validate password
	if len(input.Password) < 8 {
		return ErrInvalidPassword
	}

	if _, err := domain.ParseRole(string(input.Role)); err != nil {
		return err
	}

	return nil
}
