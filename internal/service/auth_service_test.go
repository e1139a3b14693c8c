package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/domain"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

type memberStore struct {
	mu          sync.Mutex
	byID        map[string]*domain.Member
	memberships map[string]*domain.Membership
}

func newMemberStore() *memberStore {
	return &memberStore{byID: map[string]*domain.Member{}, memberships: map[string]*domain.Membership{}}
}

func (s *memberStore) Create(_ context.Context, member *domain.Member, membership *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	member.ID = uuid.NewString()
	membership.MemberID = member.ID
	s.byID[member.ID] = member
	s.memberships[member.ID] = membership
	return nil
}

func (s *memberStore) GetByID(_ context.Context, id string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, domain.ErrMemberNotFound
}

func (s *memberStore) GetByEmail(_ context.Context, email string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

type staffStore struct {
	mu   sync.Mutex
	byID map[string]*domain.StaffMember
}

func (s *staffStore) Create(_ context.Context, staff *domain.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staff.ID = uuid.NewString()
	s.byID[staff.ID] = staff
	return nil
}

func (s *staffStore) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, domain.ErrStaffNotFound
}

func (s *staffStore) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, domain.ErrStaffNotFound
}

func newAuthService(t *testing.T) (*AuthService, *memberStore, *staffStore) {
	t.Helper()
	members := newMemberStore()
	staff := &staffStore{byID: map[string]*domain.StaffMember{}}
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, BcryptCost: 4}}
	return NewAuthService(cfg, AuthDependencies{MemberRepo: members, StaffRepo: staff}), members, staff
}

func codeOf(err error) string {
	return apperrors.ToDomainError(err).Code
}

func TestRegisterAndLoginMember(t *testing.T) {
	svc, members, _ := newAuthService(t)
	ctx := context.Background()

	member, session, err := svc.RegisterMember(ctx, " Ana ", "Ana@Gym.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Ana", member.Name)
	assert.Equal(t, "ana@gym.test", member.Email)
	assert.Equal(t, domain.RoleClient, session.Role)
	assert.Equal(t, domain.MembershipPendingPayment, members.memberships[member.ID].Status)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.Subject)
	assert.Equal(t, domain.SubjectTypeMember, claims.SubjectType)

	_, _, err = svc.RegisterMember(ctx, "Ana", "ana@gym.test", "correct-horse")
	assert.Equal(t, "CONFLICT", codeOf(err))

	loggedIn, _, err := svc.LoginMember(ctx, "ANA@gym.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, member.ID, loggedIn.ID)

	_, _, err = svc.LoginMember(ctx, "ana@gym.test", "wrong-password")
	assert.Equal(t, "UNAUTHORIZED", codeOf(err))
	_, _, err = svc.LoginMember(ctx, "nobody@gym.test", "correct-horse")
	assert.Equal(t, "UNAUTHORIZED", codeOf(err))
}

func TestRegisterMemberValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, _, err := svc.RegisterMember(context.Background(), "", "not-an-email", "short")
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	assert.Len(t, domainErr.Details, 3)
}

func TestStaffAccounts(t *testing.T) {
	svc, _, staffRepo := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin@gym.test", "admin-password"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin@gym.test", "admin-password"))
	assert.Len(t, staffRepo.byID, 1)

	admin, session, err := svc.LoginStaff(ctx, "admin@gym.test", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSysAdmin, admin.Role)
	assert.Equal(t, domain.RoleSysAdmin, session.Role)

	_, err = svc.CreateStaff(ctx, "Desk", "desk@gym.test", "desk-password", domain.RoleClient)
	assert.Equal(t, "VALIDATION_FAILED", codeOf(err))

	desk, err := svc.CreateStaff(ctx, "Desk", "desk@gym.test", "desk-password", domain.RoleReception)
	require.NoError(t, err)
	assert.True(t, desk.Active)

	desk.Active = false
	_, _, err = svc.LoginStaff(ctx, "desk@gym.test", "desk-password")
	assert.Equal(t, "FORBIDDEN", codeOf(err))

	assert.NoError(t, svc.EnsureAdmin(ctx, "", ""))
}
