package user

import "strings"

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"

	// Parent
	RoleParent = "parent:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	ParentRoles  = []string{RoleParent}
	AllRoles     = getAllRoles()
)

func getAllRoles() []string {
	all := make([]string, 0, 6)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	all = append(all, ParentRoles...)
	return all
}

// Identity is the authenticated caller, as carried by a verified JWT.
type Identity struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
}

func (id Identity) RoleStartsWith(prefix string) bool {
	for _, role := range id.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether one of the identity's roles starts with one of `prefixes`.
// Role families are prefixes ("admin:" matches "admin:owner").
func (id Identity) HasAnyRole(prefixes ...string) bool {
	for _, p := range prefixes {
		if p != "" && id.RoleStartsWith(p) {
			return true
		}
	}
	return false
}

func (id Identity) IsAdmin() bool {
	return id.RoleStartsWith(RoleAdmin)
}

func (id Identity) IsTeacher() bool {
	return id.RoleStartsWith(RoleTeacher)
}

func (id Identity) IsStudent() bool {
	return id.RoleStartsWith(RoleStudent)
}

func (id Identity) IsParent() bool {
	return id.RoleStartsWith(RoleParent)
}

// IsModerator reports whether the identity may approve or reject messages.
func (id Identity) IsModerator() bool {
	return id.IsAdmin()
}
