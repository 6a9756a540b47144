package service

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/auth"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^[0-9\-\+\s\(\)]{7,20}$`)
)

// userStore is the persistence surface the auth service needs.
type userStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// AuthService handles registration, login, and profile CRUD.
type AuthService struct {
	store  userStore
	tokens *auth.TokenService
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(store userStore, tokens *auth.TokenService) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterRequest carries the registration payload.
type RegisterRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Role        string `json:"role,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// LoginRequest carries the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries optional profile changes. A present password is
// validated against the registration policy and re-hashed.
type UpdateProfileRequest struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register validates the payload, hashes the password, and creates the user.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		return nil, apperrors.Validation("invalid email address")
	}
	if !auth.ValidPassword(req.Password) {
		return nil, apperrors.Validation("password must be at least 8 characters with lowercase, uppercase, digit and special character")
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, apperrors.Validation("role must be 'user' or 'admin'")
	}
	if req.PhoneNumber != "" && !phonePattern.MatchString(req.PhoneNumber) {
		return nil, apperrors.Validation("invalid phone number")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to hash password")
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if req.PhoneNumber != "" {
		user.PhoneNumber = sql.NullString{String: req.PhoneNumber, Valid: true}
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.New(apperrors.KindConflict, "user already exists")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to create user")
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to issue token")
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return &AuthResponse{Token: token, User: user}, nil
}

// Login verifies credentials and issues a fresh token.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		return nil, apperrors.Validation("invalid email address")
	}
	if len(req.Password) < 8 {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Validation("invalid email or password")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to look up user")
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperrors.Validation("invalid email or password")
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to issue token")
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return &AuthResponse{Token: token, User: user}, nil
}

// GetProfile returns a profile, restricted to the owner or an admin.
func (s *AuthService) GetProfile(ctx context.Context, identity auth.Identity, userID int64) (*models.User, error) {
	if err := requireSelfOrAdmin(identity, userID); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch user")
	}
	return user, nil
}

// UpdateProfile applies partial profile changes for the owner or an admin.
func (s *AuthService) UpdateProfile(ctx context.Context, identity auth.Identity, userID int64, req *UpdateProfileRequest) (*models.User, error) {
	if err := requireSelfOrAdmin(identity, userID); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch user")
	}

	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			return nil, err
		}
		user.Name = strings.TrimSpace(req.Name)
	}
	if req.Email != "" {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if !emailPattern.MatchString(email) {
			return nil, apperrors.Validation("invalid email address")
		}
		user.Email = email
	}
	if req.Password != "" {
		if !auth.ValidPassword(req.Password) {
			return nil, apperrors.Validation("password must be at least 8 characters with lowercase, uppercase, digit and special character")
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to hash password")
		}
		user.PasswordHash = hash
	}
	if req.PhoneNumber != "" {
		if !phonePattern.MatchString(req.PhoneNumber) {
			return nil, apperrors.Validation("invalid phone number")
		}
		user.PhoneNumber = sql.NullString{String: req.PhoneNumber, Valid: true}
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.New(apperrors.KindConflict, "email already registered")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to update user")
	}

	return user, nil
}

// DeleteProfile removes a user. Orders are not cascaded. Allowed for the
// owner or an admin.
func (s *AuthService) DeleteProfile(ctx context.Context, identity auth.Identity, userID int64) error {
	if err := requireSelfOrAdmin(identity, userID); err != nil {
		return err
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to delete user")
	}

	s.logger.Info("User deleted", zap.Int64("user_id", userID), zap.Int64("by", identity.UserID))
	return nil
}

func requireSelfOrAdmin(identity auth.Identity, userID int64) error {
	if identity.UserID != userID && !identity.IsAdmin() {
		return apperrors.Forbidden("not allowed to access this profile")
	}
	return nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 || len(trimmed) > 100 {
		return apperrors.Validation("name must be between 2 and 100 characters")
	}
	return nil
}
