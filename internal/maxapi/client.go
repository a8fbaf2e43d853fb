// ABOUTME: HTTP client for the MAX Bot API: polling, sending, callbacks, webhooks
// ABOUTME: Rate limits outbound calls and reports non-2xx replies as *APIError

package maxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/intake-bot/internal/dialogue"
)

// DefaultBaseURL is the public MAX Bot API endpoint.
const DefaultBaseURL = "https://platform-api.max.ru"

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBody          = 2048
)

// APIError is a non-2xx reply or an explicit failure from the platform.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("max api %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// HTTPClient defaults to a client without a global timeout; every call
	// carries its own deadline.
	HTTPClient *http.Client
	// SendRate caps outbound calls per second. Zero means unlimited.
	SendRate  float64
	SendBurst int
	// RequestTimeout bounds non-polling calls.
	RequestTimeout time.Duration
	// RenderHTML converts markdown messages to the platform's HTML format.
	RenderHTML bool
	Logger     *slog.Logger
}

// Client talks to the MAX Bot API.
type Client struct {
	http           *http.Client
	baseURL        string
	token          string
	limiter        *rate.Limiter
	requestTimeout time.Duration
	renderHTML     bool
	logger         *slog.Logger
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	limit := rate.Inf
	burst := opts.SendBurst
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
		if burst <= 0 {
			burst = int(opts.SendRate) + 1
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:           httpClient,
		baseURL:        baseURL,
		token:          opts.Token,
		limiter:        rate.NewLimiter(limit, burst),
		requestTimeout: timeout,
		renderHTML:     opts.RenderHTML,
		logger:         logger.With("component", "max"),
	}
}

// GetMe returns the bot's own account. Used to verify the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var me User
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for new updates. marker is nil on the first call.
// timeout is how long the platform may hold the request open.
func (c *Client) GetUpdates(ctx context.Context, marker *int64, timeout time.Duration, limit int, types []string) (*UpdateList, error) {
	q := url.Values{}
	secs := int(timeout / time.Second)
	if secs < 0 {
		secs = 0
	}
	q.Set("timeout", strconv.Itoa(secs))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if marker != nil {
		q.Set("marker", strconv.FormatInt(*marker, 10))
	}
	if len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+c.requestTimeout)
	defer cancel()

	var list UpdateList
	if err := c.do(ctx, http.MethodGet, "/updates", q, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SendMessage delivers msg to a user, attaching its keyboard if any.
func (c *Client) SendMessage(ctx context.Context, userID int64, msg dialogue.Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	body := newMessageBody{Text: msg.Text, Format: string(msg.Format)}
	if msg.Format == dialogue.FormatMarkdown && c.renderHTML {
		html, err := RenderHTML(msg.Text)
		if err != nil {
			return fmt.Errorf("rendering message: %w", err)
		}
		body.Text = html
		body.Format = string(dialogue.FormatHTML)
	}
	if kb := keyboard(msg.Keyboard); kb != nil {
		body.Attachments = []attachment{{Type: "inline_keyboard", Payload: keyboardPayload{Buttons: kb}}}
	}

	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if err := c.do(ctx, http.MethodPost, "/messages", q, body, nil); err != nil {
		return err
	}
	c.logger.Debug("message sent", "user_id", userID, "buttons", len(body.Attachments) > 0)
	return nil
}

// AnswerCallback acknowledges a pressed button with a short notification.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, notification string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	q := url.Values{}
	q.Set("callback_id", callbackID)

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var res simpleResult
	body := callbackAnswer{CallbackID: callbackID, Notification: notification}
	if err := c.do(ctx, http.MethodPost, "/answers", q, body, &res); err != nil {
		return err
	}
	return res.err(http.MethodPost, "/answers")
}

// Subscribe registers a webhook URL for the given update types.
func (c *Client) Subscribe(ctx context.Context, webhookURL, secret string, types []string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var res simpleResult
	body := subscriptionBody{URL: webhookURL, Secret: secret, UpdateTypes: types}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, body, &res); err != nil {
		return err
	}
	if err := res.err(http.MethodPost, "/subscriptions"); err != nil {
		return err
	}
	c.logger.Info("webhook subscribed", "url", webhookURL, "types", strings.Join(types, ","))
	return nil
}

func (r simpleResult) err(method, path string) error {
	if r.Success != nil && !*r.Success {
		return &APIError{Method: method, Path: path, Status: http.StatusOK, Body: r.Message}
	}
	return nil
}

// do performs one API call. A nil in skips the request body and a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("max api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(raw))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: body}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// keyboard converts the engine's button grid to the wire layout.
func keyboard(rows [][]dialogue.Button) [][]button {
	var out [][]button
	for _, row := range rows {
		var wire []button
		for _, b := range row {
			wb := button{Type: string(b.Kind), Text: b.Text}
			switch b.Kind {
			case dialogue.ButtonLink:
				wb.URL = b.URL
			case dialogue.ButtonCallback:
				wb.Payload = b.Payload
			case "":
				wb.Type = string(dialogue.ButtonMessage)
			}
			wire = append(wire, wb)
		}
		if len(wire) > 0 {
			out = append(out, wire)
		}
	}
	return out
}
