package domain

import "time"

// LoginHistory records one authenticated session for auditing.
type LoginHistory struct {
	ID        string
	UserID    string
	LoginAt   time.Time
	LogoutAt  *time.Time
	IPAddress string
	UserAgent string
}
