package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/auth"
	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/repository"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

const minPasswordLength = 8

// Session is an issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Role      domain.Role
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	members    repository.MemberRepository
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	MemberRepo repository.MemberRepository
	StaffRepo  repository.StaffRepository
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		members:    deps.MemberRepo,
		staff:      deps.StaffRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterMember creates a member account. The membership starts as PENDING_PAYMENT
// until the membership system activates it.
func (s *AuthService) RegisterMember(ctx context.Context, name, email, password string) (*domain.Member, *Session, error) {
	name, email = strings.TrimSpace(name), normalizeEmail(email)
	if err := validateCredentials(name, email, password); err != nil {
		return nil, nil, err
	}

	if _, err := s.members.GetByEmail(ctx, email); err == nil {
		return nil, nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}

	member := &domain.Member{Name: name, Email: email, PasswordHash: hash}
	membership := &domain.Membership{
		Status:    domain.MembershipPendingPayment,
		ExpiresAt: s.now().UTC(),
	}
	if err := s.members.Create(ctx, member, membership); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	s.logger.Info("member registered", zap.String("member_id", member.ID))

	session, err := s.session(member.ID, domain.SubjectTypeMember, domain.RoleClient)
	if err != nil {
		return nil, nil, err
	}
	return member, session, nil
}

// LoginMember authenticates a member.
func (s *AuthService) LoginMember(ctx context.Context, email, password string) (*domain.Member, *Session, error) {
	member, err := s.members.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(member.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}

	session, err := s.session(member.ID, domain.SubjectTypeMember, domain.RoleClient)
	if err != nil {
		return nil, nil, err
	}
	return member, session, nil
}

// LoginStaff authenticates staff and returns role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, *Session, error) {
	staff, err := s.staff.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrStaffNotFound) {
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if !staff.Active {
		return nil, nil, apperrors.NewForbidden("staff inactive")
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}

	session, err := s.session(staff.ID, domain.SubjectTypeStaff, staff.Role)
	if err != nil {
		return nil, nil, err
	}
	return staff, session, nil
}

// CreateStaff adds a reception, manager or admin account.
func (s *AuthService) CreateStaff(ctx context.Context, name, email, password string, role domain.Role) (*domain.StaffMember, error) {
	name, email = strings.TrimSpace(name), normalizeEmail(email)
	if err := validateCredentials(name, email, password); err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": "must be RECEPTION, MANAGER or SYS_ADMIN"})
	}

	if _, err := s.staff.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, domain.ErrStaffNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{Name: name, Email: email, PasswordHash: hash, Role: role, Active: true}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("staff created", zap.String("staff_id", staff.ID), zap.String("role", string(role)))
	return staff, nil
}

// EnsureAdmin creates the first SYS_ADMIN account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	_, err := s.staff.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrStaffNotFound) {
		return err
	}
	_, err = s.CreateStaff(ctx, "Administrator", email, password, domain.RoleSysAdmin)
	return err
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) session(subjectID string, subjectType domain.SubjectType, role domain.Role) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(subjectID, subjectType, role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{Token: token, ExpiresAt: exp, Role: role}, nil
}

func validateCredentials(name, email, password string) error {
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if email == "" || !strings.Contains(email, "@") {
		details["email"] = "must be a valid email address"
	}
	if len(password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid account data", details)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
