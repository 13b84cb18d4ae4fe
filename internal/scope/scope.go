// Package scope resolves which company boundary a caller's dashboard
// computations are restricted to.
package scope

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMisconfiguredAccount indicates a company-restricted caller that has no
// company assigned. The request cannot proceed.
var ErrMisconfiguredAccount = errors.New("scope: company-restricted account has no assigned company")

// Role is a caller role as issued by the authentication layer.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleAdmin        Role = "admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleCompanyStaff Role = "company_staff"
)

// AllCompanies is the requested-company token meaning no restriction.
const AllCompanies = "all"

// Scope is the company boundary a computation runs under. A nil CompanyID
// means all companies.
type Scope struct {
	CompanyID           *int64
	RestrictedToCompany bool
}

// All returns the unrestricted scope.
func All() Scope {
	return Scope{}
}

// ForCompany returns a scope pinned to one company by caller request.
func ForCompany(id int64) Scope {
	return Scope{CompanyID: &id}
}

// Token renders the scope for cache keys and logging.
func (s Scope) Token() string {
	if s.CompanyID == nil {
		return AllCompanies
	}
	return strconv.FormatInt(*s.CompanyID, 10)
}

// restricted reports whether the role ties the caller to its own company.
func restricted(role Role) bool {
	return role == RoleCompanyAdmin || role == RoleCompanyStaff
}

// Resolve decides the effective scope for a caller. Company-restricted roles
// always see their own company, whatever the request asked for. Everyone else
// gets the requested company, or all companies when the request is empty or
// "all".
func Resolve(roles []Role, assignedCompany *int64, requested string) (Scope, error) {
	for _, role := range roles {
		if !restricted(role) {
			continue
		}
		if assignedCompany == nil {
			return Scope{}, ErrMisconfiguredAccount
		}
		id := *assignedCompany
		return Scope{CompanyID: &id, RestrictedToCompany: true}, nil
	}

	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, AllCompanies) {
		return All(), nil
	}
	id, err := strconv.ParseInt(requested, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, errors.New("scope: invalid company id " + strconv.Quote(requested))
	}
	return ForCompany(id), nil
}

// ParseRoles splits a comma separated role list as forwarded by the auth
// proxy.
func ParseRoles(raw string) []Role {
	parts := strings.Split(raw, ",")
	roles := make([]Role, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		roles = append(roles, Role(part))
	}
	return roles
}
