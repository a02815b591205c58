package entity

import "time"

// Session is one logical login on one device. Once inactive it never
// becomes active again.
type Session struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"userId"`
	Device       string    `db:"device" json:"device"`
	IPAddress    string    `db:"ip_address" json:"ipAddress"`
	LastActivity time.Time `db:"last_activity" json:"lastActivity"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	IsActive     bool      `db:"is_active" json:"isActive"`
}

// RefreshToken represents a persisted refresh credential. Only the SHA-256
// of the opaque token is stored.
type RefreshToken struct {
	ID        string    `db:"id"`
	TokenHash string    `db:"token_hash"`
	UserID    string    `db:"user_id"`
	SessionID string    `db:"session_id"`
	ExpiresAt time.Time `db:"expires_at"`
	Revoked   bool      `db:"revoked"`
	CreatedAt time.Time `db:"created_at"`
}

// Usable reports whether the token itself may still be exchanged. The
// owning session must be checked separately.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
