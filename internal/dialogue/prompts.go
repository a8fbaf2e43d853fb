// ABOUTME: Builds the outbound messages for each state from the flow table
// ABOUTME: Also renders the derived topic and the operator lead summary

package dialogue

import (
	"fmt"
	"strings"
)

func (e *Engine) contactRow() []Button {
	return []Button{MessageButton(e.flow.ContactIcon + " " + e.flow.ContactLabel)}
}

// MainMenu is the greeting with one button row per branch plus the contact row.
func (e *Engine) MainMenu() Message {
	rows := make([][]Button, 0, len(e.flow.Branches)+1)
	for _, b := range e.flow.Branches {
		rows = append(rows, []Button{MessageButton(b.ButtonText())})
	}
	rows = append(rows, e.contactRow())
	return Message{Text: e.flow.Greeting, Keyboard: rows}
}

// Prompt returns the message a user in state should see.
func (e *Engine) Prompt(state State) Message {
	switch state {
	case StateStart:
		return e.MainMenu()
	case StateLeadPhonePrompt:
		return e.phonePrompt()
	case StateLeadPhoneInput:
		return Message{Text: e.flow.PhoneInputPrompt}
	case StateLeadTime:
		return e.timePrompt()
	}

	step, ok := e.flow.Steps[state]
	if !ok {
		return e.MainMenu()
	}
	rows := make([][]Button, 0, len(step.Choices)+1)
	for _, c := range step.Choices {
		rows = append(rows, []Button{MessageButton(c.ButtonText())})
	}
	rows = append(rows, e.contactRow())
	return Message{Text: step.Prompt, Keyboard: rows}
}

func (e *Engine) phonePrompt() Message {
	return Message{
		Text:     fmt.Sprintf(e.flow.PhonePrompt, e.privacyURL),
		Format:   FormatMarkdown,
		Keyboard: [][]Button{{MessageButton(e.flow.LeaveNumberIcon + " " + e.flow.LeaveNumberLabel)}},
	}
}

func (e *Engine) timePrompt() Message {
	rows := make([][]Button, 0, len(e.flow.TimeOptions))
	for _, c := range e.flow.TimeOptions {
		rows = append(rows, []Button{MessageButton(c.ButtonText())})
	}
	return Message{Text: e.flow.TimePrompt, Keyboard: rows}
}

// confirmation thanks the user. The operator link row is present only when
// a usable http(s) chat URL is configured.
func (e *Engine) confirmation() Message {
	var rows [][]Button
	if e.operatorChatURL != "" {
		rows = append(rows, []Button{LinkButton(e.flow.OperatorLinkLabel, e.operatorChatURL)})
	}
	rows = append(rows, []Button{MessageButton(e.flow.BackToMenuLabel)})
	return Message{Text: e.flow.ConfirmText, Keyboard: rows}
}

// Topic derives the lead topic: the branch topic followed by its non-empty
// topic fields, joined with " – ".
func (e *Engine) Topic(conv Conversation) string {
	b, ok := e.flow.BranchByID(conv.Branch)
	if !ok {
		if conv.Topic != "" {
			return conv.Topic
		}
		return e.flow.ContactTopic
	}
	parts := []string{b.Topic}
	for _, f := range b.TopicFields {
		if v := strings.TrimSpace(GetField(conv.Details, f)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, topicSeparator)
}

// OperatorSummary formats the lead notification sent to the operator.
func OperatorSummary(topic, phone, timePref string, details Details) string {
	var b strings.Builder
	b.WriteString("[ЗАЯВКА]\n")
	b.WriteString("📌 Тема: " + topic + "\n")
	b.WriteString("📞 Телефон: " + phone + "\n")
	b.WriteString("🕒 Время: " + timePref + "\n")
	b.WriteString("🗂 Данные:\n")

	var lines []string
	if details != nil {
		for _, s := range details.Slots() {
			if *s.Value != "" {
				lines = append(lines, "• "+s.Label+": "+*s.Value)
			}
		}
	}
	if len(lines) == 0 {
		lines = []string{"• —"}
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
