// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and inject storage failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[int64]*Conversation // keyed by user ID
	leads         []*Lead
	failures      map[string]error // keyed by Op name
	saves         int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[int64]*Conversation),
		failures:      make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return a StorageError wrapping err.
// Passing a nil err clears the injected failure.
func (m *MockStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *MockStore) failure(op string) error {
	if err, ok := m.failures[op]; ok {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// GetConversation returns a copy of the stored record or a fresh one.
func (m *MockStore) GetConversation(_ context.Context, userID int64) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpGetConversation); err != nil {
		return nil, err
	}

	conv, ok := m.conversations[userID]
	if !ok {
		conv = NewConversation(userID)
		m.conversations[userID] = conv
	}
	return conv.Clone(), nil
}

// SaveConversation stores a copy of the record.
func (m *MockStore) SaveConversation(_ context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpSaveConversation); err != nil {
		return err
	}

	saved := conv.Clone()
	if saved.State == "" {
		saved.State = InitialState
	}
	m.conversations[conv.UserID] = saved
	m.saves++
	return nil
}

// ResetConversation replaces the record with a fresh one.
func (m *MockStore) ResetConversation(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpResetConversation); err != nil {
		return err
	}

	m.conversations[userID] = NewConversation(userID)
	return nil
}

// AppendLead stores a copy of the lead, filling ID and CreatedAt when empty.
func (m *MockStore) AppendLead(_ context.Context, lead *Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpAppendLead); err != nil {
		return err
	}

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	m.leads = append(m.leads, copyLead(lead))
	return nil
}

// ListLeads returns copies of matching leads, newest first.
func (m *MockStore) ListLeads(_ context.Context, filter LeadFilter) ([]*Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(OpListLeads); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []*Lead
	for i := len(m.leads) - 1; i >= 0; i-- {
		l := m.leads[i]
		if filter.UserID != 0 && l.UserID != filter.UserID {
			continue
		}
		if !filter.Since.IsZero() && l.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, copyLead(l))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Conversation returns a copy of the stored record without creating one.
func (m *MockStore) Conversation(userID int64) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[userID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// Leads returns copies of every stored lead in insertion order.
func (m *MockStore) Leads() []*Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Lead, len(m.leads))
	for i, l := range m.leads {
		out[i] = copyLead(l)
	}
	return out
}

// SaveCount reports how many successful SaveConversation calls were made.
func (m *MockStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func copyLead(l *Lead) *Lead {
	out := *l
	out.Data = make(map[string]string, len(l.Data))
	for k, v := range l.Data {
		out.Data[k] = v
	}
	return &out
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
