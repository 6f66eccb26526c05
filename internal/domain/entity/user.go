package entity

import (
	"time"

	"github.com/expenseflow/approval-engine/internal/domain/role"
)

// User is a member of an organization who submits or approves claims
type User struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Roles          role.Set  `json:"roles"`
	ManagerID      *int64    `json:"manager_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasRole reports whether the user holds the role
func (u *User) HasRole(r role.Role) bool {
	return u.Roles.Has(r)
}

// Can reports whether any of the user's roles grants the capability
func (u *User) Can(c role.Capability) bool {
	return u.Roles.Can(c)
}

// IsAdmin reports whether the user holds the administrative role
func (u *User) IsAdmin() bool {
	return u.Roles.IsAdmin()
}

// Organization owns users, claims and rules
type Organization struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Country         string    `json:"country"`
	DefaultCurrency string    `json:"default_currency"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditEntry is an append-only record of one workflow operation on a claim
type AuditEntry struct {
	ID         int64     `json:"id"`
	ClaimID    int64     `json:"claim_id"`
	ActorID    int64     `json:"actor_id"`
	Operation  string    `json:"operation"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
