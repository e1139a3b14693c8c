package auth

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gymcore/access-service/internal/domain"
	apperrors "github.com/gymcore/access-service/pkg/util/errorutil"
)

// RoutePolicy grants a set of roles access to every path under Prefix.
type RoutePolicy struct {
	Prefix string
	Roles  []domain.Role
}

func (p RoutePolicy) allows(role domain.Role) bool {
	for _, allowed := range p.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// PolicyTable maps route prefixes to permitted roles. The longest matching prefix decides;
// paths without a policy are denied.
type PolicyTable struct {
	policies []RoutePolicy
}

// NewPolicyTable builds a table from the given policies.
func NewPolicyTable(policies ...RoutePolicy) *PolicyTable {
	sorted := make([]RoutePolicy, 0, len(policies))
	for _, p := range policies {
		p.Prefix = "/" + strings.Trim(p.Prefix, "/")
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &PolicyTable{policies: sorted}
}

var staffRoles = []domain.Role{domain.RoleReception, domain.RoleManager, domain.RoleSysAdmin}

// DefaultPolicyTable covers the dashboards and the access API.
func DefaultPolicyTable() *PolicyTable {
	return NewPolicyTable(
		RoutePolicy{Prefix: "/member", Roles: []domain.Role{domain.RoleClient}},
		RoutePolicy{Prefix: "/reception", Roles: staffRoles},
		RoutePolicy{Prefix: "/manager", Roles: []domain.Role{domain.RoleManager, domain.RoleSysAdmin}},
		RoutePolicy{Prefix: "/admin", Roles: []domain.Role{domain.RoleSysAdmin}},
		RoutePolicy{Prefix: "/access/credential", Roles: []domain.Role{domain.RoleClient}},
		RoutePolicy{Prefix: "/access", Roles: staffRoles},
	)
}

// Match returns the policy governing path.
func (t *PolicyTable) Match(path string) (RoutePolicy, bool) {
	for _, p := range t.policies {
		if p.Prefix == "/" || path == p.Prefix || strings.HasPrefix(path, p.Prefix+"/") {
			return p, true
		}
	}
	return RoutePolicy{}, false
}

// Allows reports whether role may access path.
func (t *PolicyTable) Allows(path string, role domain.Role) bool {
	policy, ok := t.Match(path)
	return ok && policy.allows(role)
}

// Enforce checks the authenticated principal against the table.
// It must run after AuthMiddleware.Handle.
func (t *PolicyTable) Enforce() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !t.Allows(c.Path(), principal.Role) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
