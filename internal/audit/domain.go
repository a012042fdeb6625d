package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autoservis/autoservis/internal/shared"
)

// Action enumerates the kind of mutation recorded.
type Action string

// Mutation kinds.
const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Fact is one immutable audit row. LogID is assigned by storage and grows in
// commit order.
type Fact struct {
	LogID      int64           `json:"log_id"`
	TableName  string          `json:"table_name"`
	ActionType Action          `json:"action_type"`
	RecordID   string          `json:"record_id"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Username   string          `json:"username,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Entry describes a mutation before it is serialised into a Fact.
type Entry struct {
	Table    string
	Action   Action
	RecordID string
	Old      any
	New      any
	Actor    shared.Principal
}

// Writer persists facts inside the caller's transaction.
type Writer interface {
	InsertFact(ctx context.Context, fact Fact) (Fact, error)
}

// Filters narrows audit listings.
type Filters struct {
	TableName  string
	ActionType Action
	Limit      int
}

const (
	// DefaultLimit applies when the caller does not ask for a limit.
	DefaultLimit = 100
	// MaxLimit caps a single listing.
	MaxLimit = 1000
)
