package actionq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrItemNotFound is returned by Storage.GetItem when the key does not exist.
var ErrItemNotFound = errors.New("item not found")

// Storage is a key-value store that keeps queue snapshots between runs.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// StoredAction is the persisted form of an action. Executor and options are never stored.
type StoredAction struct {
	Type         ActionType `json:"type"`
	Complete     bool       `json:"complete"`
	Active       bool       `json:"active"`
	UpdatedAt    int64      `json:"updatedAt"`
	Result       any        `json:"result,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// UpdatedTime returns UpdatedAt as a time.
func (s StoredAction) UpdatedTime() time.Time {
	return time.UnixMilli(s.UpdatedAt)
}

// ToStoredAction strips an action down to its persisted form.
func ToStoredAction(a Action) StoredAction {
	s := StoredAction{
		Type:         a.Type,
		Complete:     a.Complete,
		Active:       a.Active,
		UpdatedAt:    a.UpdatedAt.UnixMilli(),
		ErrorMessage: a.ErrorMessage,
	}
	if !a.Options.NoStorage {
		s.Result = a.Result
	}
	return s
}

// StoreQueue writes a snapshot of the queue under key. A nil queue removes the key.
// It reports whether the write succeeded and never panics.
func StoreQueue(ctx context.Context, s Storage, key string, queue []Action) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if queue == nil {
		return s.RemoveItem(ctx, key) == nil
	}
	data, err := marshalQueue(queue)
	if err != nil {
		return false
	}
	return s.SetItem(ctx, key, string(data)) == nil
}

func marshalQueue(queue []Action) ([]byte, error) {
	stored := make([]StoredAction, len(queue))
	for i, a := range queue {
		stored[i] = ToStoredAction(a)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue: %w", err)
	}
	return data, nil
}

// GetStoredQueue reads the snapshot stored under key. It returns nil when the key
// is missing or the snapshot cannot be read or parsed.
func GetStoredQueue(ctx context.Context, s Storage, key string) []StoredAction {
	raw, err := s.GetItem(ctx, key)
	if err != nil {
		return nil
	}
	var stored []StoredAction
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil
	}
	return stored
}

// RestoreQueue rebuilds a live queue from fresh descriptors and the status fields of a
// stored snapshot, matching them by type. Stored actions without a descriptor are
// dropped and descriptors without a stored action start pending. Active flags are not
// restored because no executor survives a restart.
func RestoreQueue(props []ActionProps, stored []StoredAction) ([]Action, error) {
	queue, err := NewQueue(props)
	if err != nil {
		return nil, err
	}
	byType := make(map[ActionType]StoredAction, len(stored))
	for _, s := range stored {
		byType[s.Type] = s
	}
	for i, a := range queue {
		s, ok := byType[a.Type]
		if !ok {
			continue
		}
		a.Complete = s.Complete
		a.Result = s.Result
		a.ErrorMessage = s.ErrorMessage
		if s.UpdatedAt != 0 {
			a.UpdatedAt = s.UpdatedTime()
		}
		queue[i] = a
	}
	return queue, nil
}

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", ErrItemNotFound
	}
	return v, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
