// ABOUTME: Tests for the MAX Bot API client against an httptest server
// ABOUTME: Verifies query strings, auth header, keyboard JSON and error mapping

package maxapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/intake-bot/internal/dialogue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.Token == "" {
		opts.Token = "secret-token"
	}
	opts.Logger = testLogger()
	return NewClient(opts)
}

func TestGetUpdates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/updates", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "30", r.URL.Query().Get("timeout"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "41", r.URL.Query().Get("marker"))
		assert.Equal(t, "message_created,bot_started", r.URL.Query().Get("types"))

		_, _ = io.WriteString(w, `{
			"updates": [
				{"update_type":"message_created","timestamp":1,"message":{"sender":{"user_id":7,"name":"Анна"},"body":{"mid":"m1","text":"Привет"}}},
				{"update_type":"bot_started","timestamp":2,"user":{"user_id":8},"chat_id":99}
			],
			"marker": 42
		}`)
	}, Options{})

	marker := int64(41)
	list, err := client.GetUpdates(context.Background(), &marker, 30*time.Second, 100,
		[]string{UpdateMessageCreated, UpdateBotStarted})
	require.NoError(t, err)

	require.Len(t, list.Updates, 2)
	assert.Equal(t, "Привет", list.Updates[0].Message.Body.Text)
	assert.Equal(t, int64(7), list.Updates[0].Message.Sender.UserID)
	assert.Equal(t, int64(8), list.Updates[1].User.UserID)
	require.NotNil(t, list.Marker)
	assert.Equal(t, int64(42), *list.Marker)
}

func TestGetUpdates_NoMarker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("marker"))
		_, _ = io.WriteString(w, `{"updates":[],"marker":null}`)
	}, Options{})

	list, err := client.GetUpdates(context.Background(), nil, 0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, list.Updates)
	assert.Nil(t, list.Marker)
}

func TestSendMessage_Keyboard(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "555", r.URL.Query().Get("user_id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"message":{}}`)
	}, Options{})

	msg := dialogue.Message{
		Text: "Спасибо!",
		Keyboard: [][]dialogue.Button{
			{dialogue.LinkButton("Написать юристу", "https://max.ru/op")},
			{dialogue.MessageButton("⬅️ В меню")},
			{{Kind: dialogue.ButtonCallback, Text: "Да", Payload: "yes"}},
		},
	}
	require.NoError(t, client.SendMessage(context.Background(), 555, msg))

	assert.Equal(t, "Спасибо!", got["text"])
	assert.NotContains(t, got, "format")

	attachments := got["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "inline_keyboard", att["type"])

	rows := att["payload"].(map[string]any)["buttons"].([]any)
	require.Len(t, rows, 3)
	link := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "link", link["type"])
	assert.Equal(t, "https://max.ru/op", link["url"])
	plain := rows[1].([]any)[0].(map[string]any)
	assert.Equal(t, "message", plain["type"])
	assert.NotContains(t, plain, "url")
	cb := rows[2].([]any)[0].(map[string]any)
	assert.Equal(t, "callback", cb["type"])
	assert.Equal(t, "yes", cb["payload"])
}

func TestSendMessage_PlainHasNoAttachments(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}, Options{})

	require.NoError(t, client.SendMessage(context.Background(), 1, dialogue.Message{Text: "Номер?"}))
	assert.NotContains(t, got, "attachments")
}

func TestSendMessage_MarkdownFormats(t *testing.T) {
	md := dialogue.Message{
		Text:   "Согласие на [политику](https://example.com/p).",
		Format: dialogue.FormatMarkdown,
	}

	t.Run("passed through", func(t *testing.T) {
		var got map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}, Options{})

		require.NoError(t, client.SendMessage(context.Background(), 1, md))
		assert.Equal(t, "markdown", got["format"])
		assert.Equal(t, md.Text, got["text"])
	})

	t.Run("rendered to html", func(t *testing.T) {
		var got map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}, Options{RenderHTML: true})

		require.NoError(t, client.SendMessage(context.Background(), 1, md))
		assert.Equal(t, "html", got["format"])
		assert.Equal(t, `Согласие на <a href="https://example.com/p">политику</a>.`, got["text"])
	})
}

func TestSendMessage_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"proto.payload","message":"invalid url"}`)
	}, Options{})

	err := client.SendMessage(context.Background(), 1, dialogue.Message{Text: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "/messages", apiErr.Path)
	assert.Contains(t, apiErr.Body, "invalid url")
}

func TestAnswerCallback(t *testing.T) {
	var got callbackAnswer
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/answers", r.URL.Path)
		assert.Equal(t, "cb-1", r.URL.Query().Get("callback_id"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true}`)
	}, Options{})

	require.NoError(t, client.AnswerCallback(context.Background(), "cb-1", "Готово"))
	assert.Equal(t, "cb-1", got.CallbackID)
	assert.Equal(t, "Готово", got.Notification)
}

func TestAnswerCallback_SuccessFalse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"callback expired"}`)
	}, Options{})

	err := client.AnswerCallback(context.Background(), "cb-2", "Готово")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "callback expired", apiErr.Body)
}

func TestSubscribe(t *testing.T) {
	var got subscriptionBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true}`)
	}, Options{})

	err := client.Subscribe(context.Background(), "https://bot.example.com/webhook", "s3cret", DefaultUpdateTypes)
	require.NoError(t, err)
	assert.Equal(t, "https://bot.example.com/webhook", got.URL)
	assert.Equal(t, "s3cret", got.Secret)
	assert.Equal(t, DefaultUpdateTypes, got.UpdateTypes)
}

func TestGetMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		_, _ = io.WriteString(w, `{"user_id":1001,"name":"Де-Факто","username":"defacto_bot","is_bot":true}`)
	}, Options{})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1001), me.UserID)
	assert.True(t, me.IsBot)
}

func TestSendMessage_RateLimitHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, Options{SendRate: 0.001, SendBurst: 1})

	require.NoError(t, client.SendMessage(context.Background(), 1, dialogue.Message{Text: "first"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.SendMessage(ctx, 1, dialogue.Message{Text: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send slot")
}

func TestDefaultBaseURL(t *testing.T) {
	client := NewClient(Options{Token: "t", BaseURL: "  ", Logger: testLogger()})
	assert.Equal(t, DefaultBaseURL, client.baseURL)

	trimmed := NewClient(Options{Token: "t", BaseURL: "https://example.com/api/", Logger: testLogger()})
	assert.Equal(t, "https://example.com/api", trimmed.baseURL)
}
