// ABOUTME: Wire types of the MAX Bot API used by intake-bot
// ABOUTME: Inbound updates plus the outbound message and keyboard bodies

package maxapi

// Update types the bot subscribes to.
const (
	UpdateBotStarted      = "bot_started"
	UpdateMessageCreated  = "message_created"
	UpdateMessageCallback = "message_callback"
)

// DefaultUpdateTypes is the subscription list used when none is configured.
var DefaultUpdateTypes = []string{UpdateMessageCreated, UpdateMessageCallback, UpdateBotStarted}

// User is a MAX account.
type User struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	IsBot    bool   `json:"is_bot,omitempty"`
}

// Recipient is the chat or user a message was addressed to.
type Recipient struct {
	ChatID   int64  `json:"chat_id,omitempty"`
	ChatType string `json:"chat_type,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
}

// MessageBody is the content of a message.
type MessageBody struct {
	MID  string `json:"mid"`
	Seq  int64  `json:"seq,omitempty"`
	Text string `json:"text,omitempty"`
}

// Message is an inbound message.
type Message struct {
	Sender    *User        `json:"sender,omitempty"`
	Recipient *Recipient   `json:"recipient,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	Body      *MessageBody `json:"body,omitempty"`
}

// Callback is a pressed inline button.
type Callback struct {
	Timestamp  int64  `json:"timestamp,omitempty"`
	CallbackID string `json:"callback_id"`
	Payload    string `json:"payload,omitempty"`
	User       *User  `json:"user,omitempty"`
	// UserID appears on some callback envelopes instead of User.
	UserID int64 `json:"user_id,omitempty"`
}

// Update is one event delivered by polling or webhook.
type Update struct {
	UpdateType string    `json:"update_type"`
	Timestamp  int64     `json:"timestamp,omitempty"`
	Message    *Message  `json:"message,omitempty"`
	Callback   *Callback `json:"callback,omitempty"`
	// User and ChatID are set on bot_started.
	User       *User  `json:"user,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
	UserLocale string `json:"user_locale,omitempty"`
}

// UpdateList is the GET /updates response. Marker is passed back on the
// next poll to acknowledge everything received so far.
type UpdateList struct {
	Updates []Update `json:"updates"`
	Marker  *int64   `json:"marker,omitempty"`
}

// outbound bodies

type button struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type keyboardPayload struct {
	Buttons [][]button `json:"buttons"`
}

type attachment struct {
	Type    string          `json:"type"`
	Payload keyboardPayload `json:"payload"`
}

type newMessageBody struct {
	Text        string       `json:"text"`
	Format      string       `json:"format,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type callbackAnswer struct {
	CallbackID   string `json:"callback_id,omitempty"`
	Notification string `json:"notification,omitempty"`
}

type subscriptionBody struct {
	URL         string   `json:"url"`
	Secret      string   `json:"secret,omitempty"`
	UpdateTypes []string `json:"update_types,omitempty"`
}

type simpleResult struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}
