// ABOUTME: Normalizes MAX updates into the single event shape the dispatcher routes
// ABOUTME: Resolves callback users and builds redelivery keys

package dispatch

import (
	"strconv"
	"strings"

	"github.com/2389/intake-bot/internal/maxapi"
)

// EventKind identifies the inbound shape an Event came from.
type EventKind int

const (
	EventSessionStart EventKind = iota
	EventMessage
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStart:
		return "session_start"
	case EventMessage:
		return "message"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is a platform update reduced to what the engine needs.
type Event struct {
	Kind       EventKind
	UpdateType string
	UserID     int64
	// Text is the typed text or the callback payload.
	Text       string
	CallbackID string
	// Key identifies a redelivery of the same update. Empty disables the
	// duplicate check.
	Key string
}

// NormalizeUpdate converts u to an Event. ok is false for updates the bot
// ignores: unknown types, bot senders, blank text and missing user ids.
func NormalizeUpdate(u maxapi.Update) (Event, bool) {
	switch u.UpdateType {
	case maxapi.UpdateBotStarted:
		return normalizeStart(u)
	case maxapi.UpdateMessageCreated:
		return normalizeMessage(u)
	case maxapi.UpdateMessageCallback:
		return normalizeCallback(u)
	default:
		return Event{}, false
	}
}

func normalizeStart(u maxapi.Update) (Event, bool) {
	if u.User == nil || u.User.UserID == 0 {
		return Event{}, false
	}
	ev := Event{
		Kind:       EventSessionStart,
		UpdateType: u.UpdateType,
		UserID:     u.User.UserID,
	}
	if u.Timestamp != 0 {
		ev.Key = "start:" + strconv.FormatInt(ev.UserID, 10) + ":" + strconv.FormatInt(u.Timestamp, 10)
	}
	return ev, true
}

func normalizeMessage(u maxapi.Update) (Event, bool) {
	m := u.Message
	if m == nil || m.Sender == nil || m.Sender.UserID == 0 || m.Sender.IsBot {
		return Event{}, false
	}
	if m.Body == nil || strings.TrimSpace(m.Body.Text) == "" {
		return Event{}, false
	}
	ev := Event{
		Kind:       EventMessage,
		UpdateType: u.UpdateType,
		UserID:     m.Sender.UserID,
		Text:       m.Body.Text,
	}
	if m.Body.MID != "" {
		ev.Key = "mid:" + m.Body.MID
	}
	return ev, true
}

func normalizeCallback(u maxapi.Update) (Event, bool) {
	cb := u.Callback
	if cb == nil {
		return Event{}, false
	}
	userID := callbackUser(u)
	if userID == 0 {
		return Event{}, false
	}
	ev := Event{
		Kind:       EventCallback,
		UpdateType: u.UpdateType,
		UserID:     userID,
		Text:       cb.Payload,
		CallbackID: cb.CallbackID,
	}
	if cb.CallbackID != "" {
		ev.Key = "cb:" + cb.CallbackID
	}
	return ev, true
}

// callbackUser looks for the pressing user in callback.user_id, then
// callback.user, then the sender of the message the keyboard belongs to.
func callbackUser(u maxapi.Update) int64 {
	if u.Callback.UserID != 0 {
		return u.Callback.UserID
	}
	if u.Callback.User != nil && u.Callback.User.UserID != 0 {
		return u.Callback.User.UserID
	}
	if u.Message != nil && u.Message.Sender != nil {
		return u.Message.Sender.UserID
	}
	return 0
}
