// Package role defines the closed set of roles a user can hold and the
// capabilities each role grants.
package role

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies a role held by a user
type Role string

const (
	Admin    Role = "ADMIN"
	Manager  Role = "MANAGER"
	Employee Role = "EMPLOYEE"
	Finance  Role = "FINANCE"
	Director Role = "DIRECTOR"
)

// All lists every known role in display order
var All = []Role{Admin, Manager, Employee, Finance, Director}

// Capability is a bit set of actions a role permits
type Capability uint32

const (
	CapSubmitExpense Capability = 1 << iota
	CapViewOwnExpenses
	CapApproveExpenses
	CapViewTeamExpenses
	CapEscalate
	CapOverrideApprovals
	CapConfigureRules
	CapViewAllExpenses
	CapManageUsers
	CapActAsDesignated
)

// Capabilities returns the capability set granted by the role
func (r Role) Capabilities() Capability {
	switch r {
	case Admin:
		return CapManageUsers | CapConfigureRules | CapViewAllExpenses |
			CapOverrideApprovals | CapApproveExpenses | CapEscalate | CapActAsDesignated
	case Manager:
		return CapSubmitExpense | CapViewOwnExpenses | CapApproveExpenses |
			CapViewTeamExpenses | CapEscalate
	case Employee:
		return CapSubmitExpense | CapViewOwnExpenses
	case Finance:
		return CapSubmitExpense | CapViewOwnExpenses | CapApproveExpenses | CapViewAllExpenses
	case Director:
		return CapSubmitExpense | CapViewOwnExpenses | CapApproveExpenses | CapViewAllExpenses
	default:
		return 0
	}
}

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case Admin, Manager, Employee, Finance, Director:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Parse converts a role name into a Role
func Parse(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Set is the collection of roles held by one user
type Set []Role

// NewSet builds a de-duplicated, sorted role set
func NewSet(roles ...Role) Set {
	seen := make(map[Role]bool, len(roles))
	out := make(Set, 0, len(roles))
	for _, r := range roles {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether the set contains the role
func (s Set) Has(r Role) bool {
	for _, held := range s {
		if held == r {
			return true
		}
	}
	return false
}

// Can reports whether any role in the set grants the capability
func (s Set) Can(c Capability) bool {
	for _, r := range s {
		if r.Capabilities()&c == c {
			return true
		}
	}
	return false
}

// IsManagerTier reports whether the set holds the manager role
func (s Set) IsManagerTier() bool {
	return s.Has(Manager)
}

// IsAdmin reports whether the set holds the administrative role
func (s Set) IsAdmin() bool {
	return s.Has(Admin)
}

// Strings returns the role names
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
