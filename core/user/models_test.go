package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_HasAnyRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		prefixes []string
		want     bool
	}{
		{name: "no roles", prefixes: []string{RoleParent}},
		{name: "no prefixes", roles: []string{RoleParent}},
		{name: "exact match", roles: []string{RoleParent}, prefixes: []string{RoleParent}, want: true},
		{name: "family match", roles: []string{RoleAdminOwner}, prefixes: []string{RoleAdmin}, want: true},
		{name: "empty prefix ignored", roles: []string{RoleTeacher}, prefixes: []string{""}},
		{name: "other family", roles: []string{RoleTeacher}, prefixes: []string{RoleParent, RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Identity{ID: "u1", Roles: tt.roles}
			assert.Equal(t, tt.want, id.HasAnyRole(tt.prefixes...))
		})
	}
}

func TestIdentity_IsModerator(t *testing.T) {
	assert.True(t, Identity{Roles: []string{RoleAdminPrincipal}}.IsModerator())
	assert.False(t, Identity{Roles: []string{RoleTeacher, RoleParent}}.IsModerator())
}
