package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps histories in process memory. Each key has its own lock,
// so appends to different conversations never contend.
type MemoryStore struct {
	opts Options

	mu    sync.Mutex // guards logs, convs and seq
	logs  map[string]*memLog
	convs map[string]Conversation
	seq   int64
}

type memLog struct {
	mu    sync.Mutex
	turns []Turn
}

// NewMemory returns an empty MemoryStore.
func NewMemory(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:  opts.withDefaults(),
		logs:  make(map[string]*memLog),
		convs: make(map[string]Conversation),
	}
}

func (s *MemoryStore) log(key string, create bool) *memLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[key]
	if !ok && create {
		l = &memLog{}
		s.logs[key] = l
	}
	return l
}

func (s *MemoryStore) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Append adds a turn and trims the key's log to the ceiling under the key's
// lock.
func (s *MemoryStore) Append(ctx context.Context, key string, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := ctx.Err(); err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}

	l := s.log(key, true)
	l.mu.Lock()
	turn := Turn{Seq: s.nextSeq(), Role: role, Content: content, Timestamp: s.opts.Now()}
	l.turns = append(l.turns, turn)
	if over := len(l.turns) - s.opts.Ceiling; over > 0 {
		l.turns = append([]Turn(nil), l.turns[over:]...)
	}
	l.mu.Unlock()

	s.mu.Lock()
	c := s.convs[key]
	c.Key = key
	c.LastActivity = turn.Timestamp
	s.convs[key] = c
	s.mu.Unlock()

	return turn, nil
}

// ReadAll returns a copy of the key's turns.
func (s *MemoryStore) ReadAll(ctx context.Context, key string) ([]Turn, error) {
	return s.read(ctx, key, func(Turn) bool { return true })
}

// ReadToday returns a copy of the key's turns from the current day.
func (s *MemoryStore) ReadToday(ctx context.Context, key string) ([]Turn, error) {
	today := DayOf(s.opts.Now(), s.opts.Location)
	return s.read(ctx, key, func(t Turn) bool {
		return DayOf(t.Timestamp, s.opts.Location) == today
	})
}

func (s *MemoryStore) read(ctx context.Context, key string, keep func(Turn) bool) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	l := s.log(key, false)
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Turn
	for _, t := range l.turns {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Clear forgets the key entirely.
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "clear", Key: key, Err: err}
	}
	s.mu.Lock()
	l := s.logs[key]
	delete(s.convs, key)
	s.mu.Unlock()

	if l != nil {
		l.mu.Lock()
		l.turns = nil
		l.mu.Unlock()
	}
	return nil
}

// Count returns the number of retained turns for key.
func (s *MemoryStore) Count(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StorageError{Op: "count", Key: key, Err: err}
	}
	l := s.log(key, false)
	if l == nil {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns), nil
}

// Touch records the label and mode last seen for key.
func (s *MemoryStore) Touch(ctx context.Context, key, label, mode string) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "touch", Key: key, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[key] = Conversation{Key: key, Label: label, Mode: mode, LastActivity: s.opts.Now()}
	return nil
}

// Conversations lists conversations active at or after since, newest first.
func (s *MemoryStore) Conversations(ctx context.Context, since time.Time) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "list conversations", Err: err}
	}
	s.mu.Lock()
	var out []Conversation
	for _, c := range s.convs {
		if !c.LastActivity.Before(since) {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].Key < out[j].Key
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// ConversationCount returns the number of known conversations.
func (s *MemoryStore) ConversationCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StorageError{Op: "count conversations", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs), nil
}
