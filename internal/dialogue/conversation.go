// ABOUTME: In-memory conversation value handled by the engine
// ABOUTME: Converts to and from the persisted store record

package dialogue

import (
	"strings"
	"time"

	"github.com/2389/intake-bot/internal/store"
)

// topicSeparator joins the branch topic with its collected fields.
const topicSeparator = " – "

// Conversation is one user's dialogue progress as seen by the engine.
type Conversation struct {
	UserID   int64
	State    State
	Topic    string
	Branch   BranchID
	Details  Details
	Phone    string
	TimePref string

	// LastMenuAt is when the main menu was last sent to this user.
	LastMenuAt time.Time
	UpdatedAt  time.Time
}

// NewConversation returns a fresh conversation in StateStart.
func NewConversation(userID int64) Conversation {
	return Conversation{UserID: userID, State: StateStart}
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	c.Details = cloneDetails(c.Details)
	return c
}

// restart returns the fresh record a reset produces. Only the user id and
// the menu debounce timestamp survive.
func (c Conversation) restart() Conversation {
	next := NewConversation(c.UserID)
	next.LastMenuAt = c.LastMenuAt
	next.UpdatedAt = c.UpdatedAt
	return next
}

// Record converts the conversation to its persisted form.
func (c Conversation) Record() *store.Conversation {
	return &store.Conversation{
		UserID:     c.UserID,
		State:      string(c.State),
		Topic:      c.Topic,
		Branch:     string(c.Branch),
		Data:       DetailsToMap(c.Details),
		Phone:      c.Phone,
		TimePref:   c.TimePref,
		LastMenuAt: c.LastMenuAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// Restore rebuilds a conversation from its persisted form. A state outside
// the flow decays to a fresh StateStart record. Rows written before the
// branch column existed are resolved from the state, then from the topic.
func (f *Flow) Restore(rec *store.Conversation) Conversation {
	conv := Conversation{
		UserID:     rec.UserID,
		State:      State(rec.State),
		Topic:      rec.Topic,
		Branch:     BranchID(rec.Branch),
		Phone:      rec.Phone,
		TimePref:   rec.TimePref,
		LastMenuAt: rec.LastMenuAt,
		UpdatedAt:  rec.UpdatedAt,
	}

	if !f.HasState(conv.State) {
		return conv.restart()
	}

	if step, ok := f.Steps[conv.State]; ok {
		conv.Branch = step.Branch
	} else if conv.Branch == "" && conv.Topic != "" {
		conv.Branch = f.branchForTopic(conv.Topic)
	}

	conv.Details = DetailsFromMap(conv.Branch, rec.Data)
	if conv.Details == nil {
		conv.Branch = ""
	}
	return conv
}

// branchForTopic maps a stored topic label back to its branch.
func (f *Flow) branchForTopic(topic string) BranchID {
	if topic == f.ContactTopic {
		return BranchContact
	}
	for _, b := range f.Branches {
		if topic == b.Topic || strings.HasPrefix(topic, b.Topic+topicSeparator) {
			return b.ID
		}
	}
	return ""
}
