package auth

import (
	"time"

	"github.com/autoservis/autoservis/internal/shared"
)

// User represents an account able to log in.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       shared.UserStatus
	Roles        []shared.RoleName
}

// Session is a server-side login record. Roles are frozen at login.
type Session struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Username  string            `json:"username"`
	Status    shared.UserStatus `json:"status"`
	Roles     []shared.RoleName `json:"roles"`
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ExpiredAt reports whether the session is no longer valid at now.
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Principal converts the session snapshot into the request principal.
func (s Session) Principal() shared.Principal {
	return shared.Principal{
		UserID:    s.UserID,
		Username:  s.Username,
		Status:    s.Status,
		Roles:     shared.NewRoleSet(s.Roles...),
		SessionID: s.SessionID,
	}
}

// SessionView is a session as listed to clients.
type SessionView struct {
	Session
	MinutesUntilExpiry int `json:"minutes_until_expiry"`
}

// LoginResult is returned from a successful Authenticate.
type LoginResult struct {
	Token   string  `json:"token"`
	Session Session `json:"session"`
	User    Me      `json:"user"`
}

// Me describes the logged in user.
type Me struct {
	UserID   string            `json:"user_id"`
	Username string            `json:"username"`
	Email    string            `json:"email,omitempty"`
	Status   shared.UserStatus `json:"status,omitempty"`
	Roles    []shared.RoleName `json:"roles"`
}
