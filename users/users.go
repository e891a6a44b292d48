// Package users wraps the user endpoints of the ticket API, including the
// sync endpoints that mirror identity provider accounts into backend users.
package users

import (
	"github.com/jrsteele09/go-ticket-client/identity"
)

// Role reuses the identity roles; the backend uses the same names
type Role = identity.Role

const (
	RoleUser       = identity.RoleUser
	RoleTechnician = identity.RoleTechnician
	RoleAdmin      = identity.RoleAdmin
)

type Status string

const (
	StatusActive            Status = "ACTIVE"
	StatusInactive          Status = "INACTIVE"
	StatusSuspended         Status = "SUSPENDED"
	StatusPendingActivation Status = "PENDING_ACTIVATION"
)

// User is a backend user record
type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	FullName    string  `json:"fullName"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Role        Role    `json:"role"`
	Status      Status  `json:"status"`
	Company     *string `json:"company,omitempty"`
	Department  *string `json:"department,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type CreateRequest struct {
	Username    string  `json:"username"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Role        Role    `json:"role"`
	Company     *string `json:"company,omitempty"`
	Department  *string `json:"department,omitempty"`
}

// UpdateProfileRequest changes only the fields that are set
type UpdateProfileRequest struct {
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Company     *string `json:"company,omitempty"`
	Department  *string `json:"department,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type Stats struct {
	TotalUsers    int64 `json:"totalUsers"`
	ActiveUsers   int64 `json:"activeUsers"`
	Clients       int64 `json:"clients"`
	Technicians   int64 `json:"technicians"`
	Admins        int64 `json:"admins"`
	InactiveUsers int64 `json:"inactiveUsers"`
}

// ExistsResponse answers whether the token subject has a backend record
type ExistsResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Exists   bool   `json:"exists"`
}

func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	case StatusSuspended:
		return "Suspended"
	case StatusPendingActivation:
		return "Pending activation"
	default:
		return string(s)
	}
}

func RoleLabel(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleTechnician:
		return "Technician"
	case RoleAdmin:
		return "Administrator"
	default:
		return string(r)
	}
}
