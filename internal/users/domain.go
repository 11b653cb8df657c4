package users

import "time"

// User is an authenticated account. API keys act as bearer tokens;
// the password hash never leaves this package.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	APIKey       string
	CreatedAt    time.Time
}
