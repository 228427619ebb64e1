package user

import "github.com/ovaphlow/pitchfork/service-client-bot/internal/user/entity"

// RoleResolver classifies user ids against the configured allow-list.
type RoleResolver struct {
	admins map[int64]struct{}
}

func NewRoleResolver(adminIDs []int64) RoleResolver {
	m := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		m[id] = struct{}{}
	}
	return RoleResolver{admins: m}
}

func (r RoleResolver) IsAdmin(id int64) bool {
	_, ok := r.admins[id]
	return ok
}

func (r RoleResolver) Resolve(id int64) entity.Role {
	if r.IsAdmin(id) {
		return entity.RoleAdmin
	}
	return entity.RoleClient
}
