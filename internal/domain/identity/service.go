package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/claims/claims/internal/platform/auth"
	"github.com/claims/claims/internal/platform/dynamo"
)

var (
	// ErrInvalidCredentials is returned for every login failure. A missing
	// account and a wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRole rejects registration with a role outside the set.
	ErrInvalidRole = errors.New("role must be patient or admin")
)

// seededAdminName labels the account created by EnsureAdmin.
const seededAdminName = "System Admin"

type Service struct {
	repo   Repository
	tokens *auth.TokenService

	adminEmail    string
	adminPassword string
}

func NewService(repo Repository, tokens *auth.TokenService, adminEmail, adminPassword string) *Service {
	return &Service{
		repo:          repo,
		tokens:        tokens,
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
	}
}

// Register creates an account. Patients get a generated patient_id; admins
// do not. Email uniqueness is not enforced here.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	role := in.Role
	if role == "" {
		role = auth.RolePatient
	}
	if role != auth.RolePatient && role != auth.RoleAdmin {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := uuid.NewString()
	u := &User{
		Key:          UserKey(userID),
		UserID:       userID,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         role,
		Name:         in.Name,
		CreatedAt:    time.Now().Unix(),
	}
	if role == auth.RolePatient {
		pid := NewPatientID()
		u.PatientID = &pid
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a token. The account is found by
// email or by patient ID; email wins when both are present. When the admin
// email has no account yet, the seeded admin is created on the way through.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	u, err := s.lookup(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, u.UserID, u.Role, u.PatientID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		TokenType: "bearer",
		UserID:    u.UserID,
		Role:      u.Role,
		PatientID: u.PatientID,
	}, nil
}

func (s *Service) lookup(ctx context.Context, in LoginInput) (*User, error) {
	switch {
	case in.Email != "":
		u, err := s.repo.FindByEmail(ctx, in.Email)
		if errors.Is(err, dynamo.ErrNotFound) {
			if in.Email == s.adminEmail {
				return s.bootstrapAdmin(ctx)
			}
			return nil, ErrInvalidCredentials
		}
		return u, err
	case in.PatientID != "":
		u, err := s.repo.FindByPatientID(ctx, in.PatientID)
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return u, err
	default:
		return nil, ErrInvalidCredentials
	}
}

func (s *Service) bootstrapAdmin(ctx context.Context) (*User, error) {
	if _, err := s.EnsureAdmin(ctx); err != nil {
		return nil, err
	}
	u, err := s.repo.FindByEmail(ctx, s.adminEmail)
	if errors.Is(err, dynamo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	return u, err
}

// EnsureAdmin seeds the configured admin account. The user ID is derived
// deterministically from the admin email, so concurrent callers race toward
// the same key and the conditional write lets exactly one through. Safe to
// call on every startup.
func (s *Service) EnsureAdmin(ctx context.Context) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	userID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(s.adminEmail)).String()
	u := &User{
		Key:          UserKey(userID),
		UserID:       userID,
		Email:        s.adminEmail,
		PasswordHash: string(hash),
		Role:         auth.RoleAdmin,
		Name:         seededAdminName,
		CreatedAt:    time.Now().Unix(),
	}

	err = s.repo.CreateIfAbsent(ctx, u)
	if errors.Is(err, dynamo.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Profile returns the account for a validated token's subject.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// ListUsers pages through the user registry.
func (s *Service) ListUsers(ctx context.Context, page dynamo.Page) ([]*User, string, error) {
	return s.repo.List(ctx, page)
}

// DeleteUser removes an account by ID.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}
