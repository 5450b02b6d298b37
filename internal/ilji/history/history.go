// Package history is the bounded, per-conversation turn log.
//
// Every conversation key maps to an ordered list of turns. Writes are
// append-only and each append atomically trims the log back to the store's
// ceiling, so the persisted count never exceeds it. Readers see turns in
// write order; the write sequence is the only sort key. A key that was never
// written behaves exactly like an empty history.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultCeiling is the number of turns kept per conversation.
const DefaultCeiling = 60

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one immutable message in a conversation.
type Turn struct {
	Seq       int64
	Role      Role
	Content   string
	Timestamp time.Time
}

// Conversation is the metadata row kept alongside a key's turns.
type Conversation struct {
	Key          string
	Label        string
	Mode         string
	LastActivity time.Time
}

// Store is the History Store contract shared by the SQLite and in-memory
// implementations.
type Store interface {
	// Append writes one turn and trims the key's log to the ceiling in the
	// same atomic step.
	Append(ctx context.Context, key string, role Role, content string) (Turn, error)
	// ReadAll returns every retained turn for key, oldest first.
	ReadAll(ctx context.Context, key string) ([]Turn, error)
	// ReadToday returns the retained turns whose calendar day, in the
	// store's location, is today.
	ReadToday(ctx context.Context, key string) ([]Turn, error)
	// Clear deletes the key's turns and its conversation row.
	Clear(ctx context.Context, key string) error
	// Count returns the number of retained turns for key.
	Count(ctx context.Context, key string) (int, error)

	// Touch records the label and mode a key was last seen with.
	Touch(ctx context.Context, key, label, mode string) error
	// Conversations lists keys active at or after since, most recent first.
	Conversations(ctx context.Context, since time.Time) ([]Conversation, error)
	// ConversationCount returns the number of known conversations.
	ConversationCount(ctx context.Context) (int, error)
}

// ErrInvalidRole is returned by Append for roles other than user/assistant.
var ErrInvalidRole = errors.New("history: invalid role")

// StorageError wraps an I/O failure of the underlying store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("history: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Options configures either store implementation.
type Options struct {
	// Ceiling is the maximum retained turns per key. Default: 60.
	Ceiling int
	// Location partitions turns into calendar days. Default: time.Local.
	Location *time.Location
	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Ceiling <= 0 {
		o.Ceiling = DefaultCeiling
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// DayOf returns the YYYY-MM-DD calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// LastPair returns the final two turns when they are a user turn followed by
// an assistant turn.
func LastPair(turns []Turn) (user, assistant Turn, ok bool) {
	if len(turns) < 2 {
		return Turn{}, Turn{}, false
	}
	u, a := turns[len(turns)-2], turns[len(turns)-1]
	if u.Role != RoleUser || a.Role != RoleAssistant {
		return Turn{}, Turn{}, false
	}
	return u, a, true
}
