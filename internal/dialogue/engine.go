// ABOUTME: Conversation engine: pure (Conversation, Input) -> Result transitions
// ABOUTME: Universal commands first, then a per-state handler table built from the flow

package dialogue

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/intake-bot/internal/store"
)

const (
	// DefaultMenuDebounce is how long a repeated menu trigger stays silent.
	DefaultMenuDebounce = 5 * time.Second

	// DefaultPrivacyURL is linked from the phone prompt.
	DefaultPrivacyURL = "https://disk.yandex.ru/i/XCoJa306kaZgiQ"
)

// InputKind distinguishes a session start from typed or button text.
type InputKind int

const (
	InputText InputKind = iota
	InputSessionStart
)

// Input is one normalized inbound event for a user.
type Input struct {
	Kind InputKind
	Text string
}

// TextInput wraps typed text or a button payload.
func TextInput(text string) Input {
	return Input{Kind: InputText, Text: text}
}

// SessionStart is the input produced when a user opens the bot.
func SessionStart() Input {
	return Input{Kind: InputSessionStart}
}

// Outcome classifies what a transition did. Used for logs and metrics.
type Outcome string

const (
	OutcomeAdvanced       Outcome = "advanced"
	OutcomeReprompt       Outcome = "reprompt"
	OutcomeMenu           Outcome = "menu"
	OutcomeMenuSuppressed Outcome = "menu_suppressed"
	OutcomeContact        Outcome = "contact"
	OutcomeLead           Outcome = "lead"
)

// Result is the outcome of handling one input.
type Result struct {
	// Conversation is the next value. Only meaningful when Persist is true.
	Conversation Conversation
	// Persist asks the caller to save Conversation before sending Actions.
	Persist bool
	// Lead must be appended before Conversation is saved.
	Lead    *store.Lead
	Actions []Action
	Outcome Outcome
}

// Options configures an Engine.
type Options struct {
	// Flow defaults to DefaultFlow().
	Flow *Flow
	// MenuDebounce zero means DefaultMenuDebounce; negative disables it.
	MenuDebounce time.Duration
	// OperatorChatURL adds a link button to the confirmation when it is http(s).
	OperatorChatURL string
	// PrivacyURL defaults to DefaultPrivacyURL.
	PrivacyURL string
	Now        func() time.Time
	Logger     *slog.Logger
}

type input struct {
	raw  string
	norm string
}

type handler func(conv Conversation, in input) Result

// Engine interprets user input against the flow. It holds no per-user state
// and never performs I/O, so one Engine serves every conversation.
type Engine struct {
	flow            *Flow
	debounce        time.Duration
	operatorChatURL string
	privacyURL      string
	now             func() time.Time

	handlers       map[State]handler
	branchKeys     map[string]Branch
	choiceKeys     map[State]map[string]Choice
	timeKeys       map[string]Choice
	contactKey     string
	leaveNumberKey string
}

// NewEngine validates the flow and builds the state handler table.
func NewEngine(opts Options) (*Engine, error) {
	flow := opts.Flow
	if flow == nil {
		flow = DefaultFlow()
	}
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dialogue")

	e := &Engine{
		flow:           flow,
		debounce:       opts.MenuDebounce,
		privacyURL:     opts.PrivacyURL,
		now:            opts.Now,
		handlers:       make(map[State]handler),
		branchKeys:     make(map[string]Branch),
		choiceKeys:     make(map[State]map[string]Choice),
		timeKeys:       make(map[string]Choice),
		contactKey:     Normalize(flow.ContactLabel),
		leaveNumberKey: Normalize(flow.LeaveNumberLabel),
	}
	if e.debounce == 0 {
		e.debounce = DefaultMenuDebounce
	}
	if e.privacyURL == "" {
		e.privacyURL = DefaultPrivacyURL
	}
	if e.now == nil {
		e.now = time.Now
	}

	if url := strings.TrimSpace(opts.OperatorChatURL); url != "" {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			e.operatorChatURL = url
		} else {
			logger.Warn("operator chat URL must be http or https, skipping link button", "url", url)
		}
	}

	for _, b := range flow.Branches {
		e.branchKeys[Normalize(b.Label)] = b
	}
	for _, c := range flow.TimeOptions {
		e.timeKeys[Normalize(c.Label)] = c
	}

	e.handlers[StateStart] = e.handleStart
	for state, step := range flow.Steps {
		keys := make(map[string]Choice, len(step.Choices))
		for _, c := range step.Choices {
			keys[Normalize(c.Label)] = c
		}
		e.choiceKeys[state] = keys
		e.handlers[state] = e.stepHandler(step)
	}
	e.handlers[StateLeadPhonePrompt] = e.handlePhonePrompt
	e.handlers[StateLeadPhoneInput] = e.capturePhone
	e.handlers[StateLeadTime] = e.handleTime

	return e, nil
}

// Flow returns the table the engine runs.
func (e *Engine) Flow() *Flow {
	return e.flow
}

// Handle computes the transition for one input. conv is not modified.
//
// Menu commands and session starts always win, then the contact shortcut,
// then a main menu label typed outside StateStart (treated as a restart),
// and only then the handler of the current state.
func (e *Engine) Handle(conv Conversation, in Input) Result {
	conv = conv.Clone()
	if !e.flow.HasState(conv.State) {
		conv = conv.restart()
	}

	t := input{raw: strings.TrimSpace(in.Text), norm: Normalize(in.Text)}

	switch {
	case in.Kind == InputSessionStart, IsMenuCommand(t.norm):
		return e.showMenu(conv)
	case t.raw == "":
		return e.reprompt(conv)
	case t.norm == e.contactKey:
		return e.contact(conv)
	}

	if conv.State != StateStart {
		if _, ok := e.branchKeys[t.norm]; ok {
			return e.showMenu(conv)
		}
	}

	return e.handlers[conv.State](conv, t)
}

// showMenu resets the conversation and sends the main menu unless it went
// out within the debounce window. The reset is persisted either way.
func (e *Engine) showMenu(conv Conversation) Result {
	now := e.now()
	next := conv.restart()

	if e.menuRecentlySent(conv.LastMenuAt, now) {
		return Result{Conversation: next, Persist: true, Outcome: OutcomeMenuSuppressed}
	}

	next.LastMenuAt = now
	return Result{
		Conversation: next,
		Persist:      true,
		Actions:      []Action{{Kind: ActionSend, Message: e.MainMenu()}},
		Outcome:      OutcomeMenu,
	}
}

func (e *Engine) menuRecentlySent(last, now time.Time) bool {
	if e.debounce <= 0 || last.IsZero() {
		return false
	}
	since := now.Sub(last)
	return since >= 0 && since < e.debounce
}

// reprompt re-sends the current prompt without touching the conversation.
func (e *Engine) reprompt(conv Conversation) Result {
	return Result{
		Conversation: conv,
		Actions:      []Action{{Kind: ActionSend, Message: e.Prompt(conv.State)}},
		Outcome:      OutcomeReprompt,
	}
}

// advance persists conv and sends the prompt of its new state.
func (e *Engine) advance(conv Conversation, outcome Outcome) Result {
	return Result{
		Conversation: conv,
		Persist:      true,
		Actions:      []Action{{Kind: ActionSend, Message: e.Prompt(conv.State)}},
		Outcome:      outcome,
	}
}

// contact jumps to phone collection, keeping a topic already chosen.
func (e *Engine) contact(conv Conversation) Result {
	if conv.Topic == "" {
		conv.Topic = e.flow.ContactTopic
		conv.Branch = BranchContact
		conv.Details = NewDetails(BranchContact)
	}
	conv.State = StateLeadPhonePrompt
	return e.advance(conv, OutcomeContact)
}

func (e *Engine) handleStart(conv Conversation, in input) Result {
	b, ok := e.branchKeys[in.norm]
	if !ok {
		return e.reprompt(conv)
	}

	next := conv.restart()
	next.Branch = b.ID
	next.Topic = b.Topic
	next.Details = NewDetails(b.ID)
	next.State = b.Entry
	return e.advance(next, OutcomeAdvanced)
}

// stepHandler builds the handler for one table step.
func (e *Engine) stepHandler(step *Step) handler {
	return func(conv Conversation, in input) Result {
		value := in.raw
		write := true
		next := step.Next

		if !step.FreeText() {
			c, ok := e.choiceKeys[step.State][in.norm]
			if !ok {
				return e.reprompt(conv)
			}
			value = c.StoredValue()
			write = !c.NoWrite
			if c.Next != "" {
				next = c.Next
			}
		}

		if conv.Details == nil || conv.Details.Branch() != step.Branch {
			conv.Branch = step.Branch
			conv.Details = NewDetails(step.Branch)
		}
		if write {
			SetField(conv.Details, step.Field, value)
		}
		conv.State = next
		return e.advance(conv, OutcomeAdvanced)
	}
}

func (e *Engine) handlePhonePrompt(conv Conversation, in input) Result {
	if in.norm == e.leaveNumberKey {
		conv.State = StateLeadPhoneInput
		return e.advance(conv, OutcomeAdvanced)
	}
	return e.capturePhone(conv, in)
}

func (e *Engine) capturePhone(conv Conversation, in input) Result {
	phone, ok := ExtractPhone(in.raw)
	if !ok {
		return e.reprompt(conv)
	}
	conv.Phone = phone
	conv.State = StateLeadTime
	return e.advance(conv, OutcomeAdvanced)
}

// handleTime completes the intake: it produces the lead, the confirmation
// and the operator notification, then resets the conversation.
func (e *Engine) handleTime(conv Conversation, in input) Result {
	c, ok := e.timeKeys[in.norm]
	if !ok {
		return e.reprompt(conv)
	}

	conv.TimePref = CleanLabel(c.Label)
	topic := e.Topic(conv)

	lead := &store.Lead{
		UserID:    conv.UserID,
		Topic:     topic,
		Branch:    string(conv.Branch),
		Data:      DetailsToMap(conv.Details),
		Phone:     conv.Phone,
		TimePref:  conv.TimePref,
		CreatedAt: e.now().UTC(),
	}

	return Result{
		Conversation: conv.restart(),
		Persist:      true,
		Lead:         lead,
		Actions: []Action{
			{Kind: ActionSend, Message: e.confirmation()},
			{Kind: ActionNotifyOperator, Message: Message{
				Text: OperatorSummary(topic, conv.Phone, conv.TimePref, conv.Details),
			}},
		},
		Outcome: OutcomeLead,
	}
}
