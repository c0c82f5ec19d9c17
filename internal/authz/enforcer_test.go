package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/models"
)

func TestRoleCapabilities(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role models.Role
		act  Action
		want bool
	}{
		{models.RoleMember, ActPost, true},
		{models.RoleMember, ActPost.Restricted(), false},
		{models.RoleMember, ActPostLocked, false},
		{models.RoleMember, ActRemoveMember, false},
		{models.RoleMember, ActLeave, true},
		{models.RoleAdmin, ActPost, true},
		{models.RoleAdmin, ActPostLocked, true},
		{models.RoleAdmin, ActMuteMember, true},
		{models.RoleAdmin, ActMuteAdmin, false},
		{models.RoleAdmin, ActUpdateRole, false},
		{models.RoleAdmin, ActDeleteGroup, false},
		{models.RoleAdmin, ActLeave, true},
		{models.RoleCreator, ActPostLocked, true},
		{models.RoleCreator, ActRemoveAdmin, true},
		{models.RoleCreator, ActDeleteGroup, true},
		{models.RoleCreator, ActLeave, false},
		{"", ActPost, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.act), func(t *testing.T) {
			assert.Equal(t, tt.want, e.Can(tt.role, tt.act))
		})
	}
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, ActSendMedia, ActSendMedia.For(models.AudienceAll))
	assert.Equal(t, Action("send_media:restricted"), ActSendMedia.For(models.AudienceAdmins))
}
