package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/repository"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	Member      *domain.Member
	Staff       *domain.StaffMember
	Role        domain.Role
}

// SubjectID returns the id of the member or staff account.
func (p *Principal) SubjectID() string {
	switch {
	case p.Member != nil:
		return p.Member.ID
	case p.Staff != nil:
		return p.Staff.ID
	}
	return ""
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	members repository.MemberRepository
	staff   repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, members repository.MemberRepository, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, members: members, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.SubjectType, Role: claims.Role}

	switch claims.SubjectType {
	case domain.SubjectTypeMember:
		if claims.Role != domain.RoleClient {
			return apperrors.NewUnauthorized("invalid token role")
		}
		member, err := m.members.GetByID(c.UserContext(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrMemberNotFound) {
				return apperrors.NewUnauthorized("member not found")
			}
			return apperrors.MapError(err)
		}
		principal.Member = member
	case domain.SubjectTypeStaff:
		staff, err := m.staff.GetByID(c.UserContext(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrStaffNotFound) {
				return apperrors.NewUnauthorized("staff not found")
			}
			return apperrors.MapError(err)
		}
		if !staff.Active {
			return apperrors.NewUnauthorized("staff inactive")
		}
		// the stored role wins over the one in the token
		principal.Staff = staff
		principal.Role = staff.Role
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// WithPrincipal stores a principal on the request.
func WithPrincipal(c *fiber.Ctx, principal *Principal) {
	c.Locals(principalKey, principal)
}
