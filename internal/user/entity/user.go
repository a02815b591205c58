package entity

import "time"

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents an account row in the `users` table.
// Sessions and refresh tokens reference it with ON DELETE CASCADE.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	AvatarURL    *string   `db:"avatar_url" json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
