// ABOUTME: Webhook body parsing and markdown to HTML rendering
// ABOUTME: Accepts both the batched and the single-update webhook shapes

package maxapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// ParsePayload decodes a webhook body. The platform sends either
// {"updates":[...]} or a single update object. Anything else yields no updates.
func ParsePayload(body []byte) ([]Update, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}

	if raw, ok := probe["updates"]; ok {
		var updates []Update
		if err := json.Unmarshal(raw, &updates); err != nil {
			return nil, fmt.Errorf("decoding webhook updates: %w", err)
		}
		return updates, nil
	}

	if _, ok := probe["update_type"]; ok {
		var u Update
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, fmt.Errorf("decoding webhook update: %w", err)
		}
		return []Update{u}, nil
	}

	return nil, nil
}

var markdown = goldmark.New()

// RenderHTML converts message markdown to the HTML subset the platform
// accepts. Paragraph tags are dropped; line breaks inside a paragraph stay.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	out := buf.String()
	out = strings.ReplaceAll(out, "</p>\n<p>", "\n\n")
	out = strings.ReplaceAll(out, "<p>", "")
	out = strings.ReplaceAll(out, "</p>", "")
	return strings.TrimSpace(out), nil
}
