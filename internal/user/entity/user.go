package entity

// Role is assigned once at first contact and never re-derived afterwards.
type Role string

const (
	RoleNone   Role = ""
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// User represents a row in the `user_info` table.
type User struct {
	TgUserID int64   `db:"tg_user_id"`
	Role     *string `db:"role"`
}

// RoleValue returns the stored role, RoleNone when unset.
func (u *User) RoleValue() Role {
	if u.Role == nil {
		return RoleNone
	}
	return Role(*u.Role)
}
