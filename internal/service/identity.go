package service

import (
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// Identity is the authenticated caller derived from a verified token.
type Identity struct {
	UserID      string
	Role        models.Role
	Username    string
	DisplayName string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Authorized reports whether role may run the named mutation.
func Authorized(role models.Role, mutation string) bool {
	switch mutation {
	case syncproto.MutationAddMessage:
		return true
	case syncproto.MutationDeleteMessage,
		syncproto.MutationMuteUser,
		syncproto.MutationUnmuteUser,
		syncproto.MutationBanUser,
		syncproto.MutationUnbanUser,
		syncproto.MutationSetUserCooldown,
		syncproto.MutationSetSlowMode,
		syncproto.MutationRotateEvent:
		return role == models.RoleAdmin
	default:
		return false
	}
}
