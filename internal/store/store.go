// Package store provides durable persistence for users, sessions, and
// the append-only exchange log. Exchanges are ordered by insertion per
// session; appending one advances the owning session's updated
// timestamp in the same transaction.
package store

import (
	"errors"
	"time"

	"github.com/datachat-ai/datachat/internal/ops"
	"github.com/datachat-ai/datachat/internal/suggest"
)

// Exchange roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// User is an account that owns sessions. Unlimited exempts the user
// from the daily exchange quota. APIKeyHash is the bcrypt hash of the
// secret part of the user's API key; the key itself is never stored.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Unlimited  bool      `json:"unlimited"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is a named container for one active dataset and its exchange
// history. UpdatedAt advances on every exchange append.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Exchange is one persisted user or assistant message with its optional
// payloads. An assistant exchange with Error set carries no chart or
// table payloads; AppendExchange enforces that invariant.
type Exchange struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Chart       *ops.Chart       `json:"chart,omitempty"`
	Table       *ops.Table       `json:"table,omitempty"`
	Suggestions []suggest.Action `json:"suggestions,omitempty"`
	Operations  []string         `json:"operations,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
