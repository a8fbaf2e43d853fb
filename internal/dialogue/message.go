// ABOUTME: Outbound message and action shapes produced by the engine
// ABOUTME: Transport-neutral text, format and button grid

package dialogue

// Format selects how the platform renders message text.
type Format string

const (
	FormatPlain    Format = ""
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ButtonKind is the behavior of an inline keyboard button.
type ButtonKind string

const (
	// ButtonMessage re-sends its label as if the user typed it.
	ButtonMessage ButtonKind = "message"
	// ButtonLink opens an external URL.
	ButtonLink ButtonKind = "link"
	// ButtonCallback sends its payload as if the user typed it.
	ButtonCallback ButtonKind = "callback"
)

// Button is one inline keyboard button.
type Button struct {
	Kind    ButtonKind
	Text    string
	URL     string
	Payload string
}

// MessageButton returns a label-only button.
func MessageButton(text string) Button {
	return Button{Kind: ButtonMessage, Text: text}
}

// LinkButton returns a button opening url.
func LinkButton(text, url string) Button {
	return Button{Kind: ButtonLink, Text: text, URL: url}
}

// Message is plain text with an optional grid of button rows.
type Message struct {
	Text     string
	Format   Format
	Keyboard [][]Button
}

// HasLinks reports whether any button opens an external URL.
func (m Message) HasLinks() bool {
	for _, row := range m.Keyboard {
		for _, b := range row {
			if b.Kind == ButtonLink {
				return true
			}
		}
	}
	return false
}

// WithoutLinks returns a copy with link buttons removed and empty rows dropped.
func (m Message) WithoutLinks() Message {
	out := Message{Text: m.Text, Format: m.Format}
	for _, row := range m.Keyboard {
		var kept []Button
		for _, b := range row {
			if b.Kind != ButtonLink {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 {
			out.Keyboard = append(out.Keyboard, kept)
		}
	}
	return out
}

// ActionKind says who receives an action's message.
type ActionKind int

const (
	// ActionSend delivers the message to the conversation's user.
	ActionSend ActionKind = iota
	// ActionNotifyOperator delivers the message to the configured operator.
	ActionNotifyOperator
)

func (k ActionKind) String() string {
	switch k {
	case ActionSend:
		return "send"
	case ActionNotifyOperator:
		return "notify_operator"
	default:
		return "unknown"
	}
}

// Action is one outbound side effect, executed in order by the dispatcher.
type Action struct {
	Kind    ActionKind
	Message Message
}
