package domain

import "time"

// Role enumerates marketplace account roles.
type Role string

const (
	RoleUser       Role = "user"
	RoleShopkeeper Role = "shopkeeper"
	RoleDelivery   Role = "delivery"
	RoleAdmin      Role = "admin"
)

// Valid reports whether the role is one of the known marketplace roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleShopkeeper, RoleDelivery, RoleAdmin:
		return true
	}
	return false
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID           int64
	Username     string
	Email        string
	Role         Role
	PasswordHash string
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAuthenticate reports whether the account may be issued tokens.
func (u User) CanAuthenticate() bool {
	return u.IsActive
}
