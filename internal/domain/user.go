package domain

import "time"

// Role enumerates organizational roles.
type Role string

const (
	RoleEmployee          Role = "employee"
	RoleHead              Role = "head"
	RoleDean              Role = "dean"
	RolePresident         Role = "president"
	RoleAdmin             Role = "admin"
	RoleAdminAssistant    Role = "admin_assistant"
	RoleAcademicAssistant Role = "academic_assistant"
)

// User is a member of the organization who creates, works, or oversees
// tickets.
type User struct {
	ID           string
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	DepartmentID *string
	Active       bool
	FirstLoginAt *time.Time
	LastLoginAt  *time.Time
	LoginCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsUpperManagement reports whether the user has global visibility and
// override authority over all tickets.
func (u *User) IsUpperManagement() bool {
	switch u.Role {
	case RoleAdmin, RolePresident, RoleAdminAssistant, RoleAcademicAssistant:
		return true
	}
	return false
}

// InDepartment reports whether the user belongs to the given department.
func (u *User) InDepartment(departmentID string) bool {
	return u.DepartmentID != nil && *u.DepartmentID == departmentID
}
