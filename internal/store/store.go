// ABOUTME: Store interface and data types for intake-bot persistence
// ABOUTME: Defines Conversation and Lead records plus the StorageError wrapper

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// InitialState is the state name every fresh conversation starts in.
const InitialState = "START"

// Storage operation names reported in StorageError.Op
const (
	OpGetConversation   = "get_conversation"
	OpSaveConversation  = "save_conversation"
	OpResetConversation = "reset_conversation"
	OpAppendLead        = "append_lead"
	OpListLeads         = "list_leads"
)

// StorageError wraps a failure of the persistence layer.
// Callers must abort the current event when they receive one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapErr returns nil for a nil error, otherwise a *StorageError for op.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Conversation is the persisted dialogue progress of one user.
// State and Data are stored as plain strings; interpreting them is the
// dialogue package's job.
type Conversation struct {
	UserID     int64
	State      string
	Topic      string
	Branch     string
	Data       map[string]string
	Phone      string
	TimePref   string
	LastMenuAt time.Time
	UpdatedAt  time.Time
}

// NewConversation returns a fresh record for userID in the initial state.
func NewConversation(userID int64) *Conversation {
	return &Conversation{
		UserID: userID,
		State:  InitialState,
		Data:   map[string]string{},
	}
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Data = make(map[string]string, len(c.Data))
	for k, v := range c.Data {
		out.Data[k] = v
	}
	return &out
}

// Lead is one completed intake submission. Leads are insert-only.
type Lead struct {
	ID        string
	UserID    int64
	Topic     string
	Branch    string
	Data      map[string]string
	Phone     string
	TimePref  string
	CreatedAt time.Time
}

// LeadFilter narrows ListLeads results. Zero values mean "no filter".
type LeadFilter struct {
	UserID int64
	Since  time.Time
	Limit  int
}

// Store defines the interface for conversation and lead persistence
type Store interface {
	// GetConversation returns the stored record for userID, or a fresh one
	// (state InitialState) if none exists. Absence is not an error.
	GetConversation(ctx context.Context, userID int64) (*Conversation, error)

	// SaveConversation upserts the full record keyed by UserID.
	// Saving an identical value twice leaves the stored row unchanged.
	SaveConversation(ctx context.Context, conv *Conversation) error

	// ResetConversation replaces the record with a fresh one for userID.
	ResetConversation(ctx context.Context, userID int64) error

	// AppendLead inserts a lead. It never modifies conversation rows.
	AppendLead(ctx context.Context, lead *Lead) error

	// ListLeads returns leads newest first.
	ListLeads(ctx context.Context, filter LeadFilter) ([]*Lead, error)

	// Close releases any resources held by the store
	Close() error
}
