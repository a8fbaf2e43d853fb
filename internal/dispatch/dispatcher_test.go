// ABOUTME: Tests for the dispatcher pipeline with a mock store and fake transport
// ABOUTME: Covers persist-before-send, callback acks, redelivery and the full intake run

package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/intake-bot/internal/dedupe"
	"github.com/2389/intake-bot/internal/dialogue"
	"github.com/2389/intake-bot/internal/maxapi"
	"github.com/2389/intake-bot/internal/store"
)

type sentMessage struct {
	UserID  int64
	Message dialogue.Message
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	answers  []string
	sendErr  func(userID int64, msg dialogue.Message) error
	ackErr   error
	attempts int
}

func (f *fakeTransport) SendMessage(_ context.Context, userID int64, msg dialogue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.sendErr != nil {
		if err := f.sendErr(userID, msg); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentMessage{UserID: userID, Message: msg})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, notification string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, callbackID+"|"+notification)
	return f.ackErr
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.answers = nil
	f.attempts = 0
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	d         *Dispatcher
	store     *store.MockStore
	transport *fakeTransport
	engine    *dialogue.Engine
	clock     *testClock
}

const operatorID = 9000

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}

	engine, err := dialogue.NewEngine(dialogue.Options{
		OperatorChatURL: "https://max.ru/operator",
		Now:             clock.Now,
		Logger:          logger,
	})
	require.NoError(t, err)

	cache := dedupe.New[string](time.Minute, 1000, dedupe.WithClock(clock.Now), dedupe.WithSweepInterval(0))
	t.Cleanup(cache.Close)

	h := &harness{
		store:     store.NewMockStore(),
		transport: &fakeTransport{},
		engine:    engine,
		clock:     clock,
	}
	h.d, err = New(Options{
		Store:          h.store,
		Engine:         engine,
		Transport:      h.transport,
		Dedupe:         cache,
		OperatorUserID: operatorID,
		Now:            clock.Now,
		Logger:         logger,
	})
	require.NoError(t, err)
	return h
}

func textUpdate(userID int64, mid, text string) maxapi.Update {
	return maxapi.Update{
		UpdateType: maxapi.UpdateMessageCreated,
		Message: &maxapi.Message{
			Sender: &maxapi.User{UserID: userID},
			Body:   &maxapi.MessageBody{MID: mid, Text: text},
		},
	}
}

func startUpdate(userID, ts int64) maxapi.Update {
	return maxapi.Update{
		UpdateType: maxapi.UpdateBotStarted,
		Timestamp:  ts,
		User:       &maxapi.User{UserID: userID},
	}
}

func callbackUpdate(userID int64, id, payload string) maxapi.Update {
	return maxapi.Update{
		UpdateType: maxapi.UpdateMessageCallback,
		Callback: &maxapi.Callback{
			CallbackID: id,
			Payload:    payload,
			User:       &maxapi.User{UserID: userID},
		},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	engine, err := dialogue.NewEngine(dialogue.Options{})
	require.NoError(t, err)

	_, err = New(Options{Engine: engine, Transport: &fakeTransport{}})
	assert.Error(t, err)
	_, err = New(Options{Store: store.NewMockStore(), Transport: &fakeTransport{}})
	assert.Error(t, err)
	_, err = New(Options{Store: store.NewMockStore(), Engine: engine})
	assert.Error(t, err)
}

func TestDispatcher_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.d.HandleUpdate(ctx, startUpdate(100, 1)))
	msgs := h.transport.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, h.engine.MainMenu(), msgs[0].Message)

	steps := []struct {
		mid, text string
		state     string
	}{
		{"m1", "Перепланировка", string(dialogue.StateReplan1)},
		{"m2", "Жилое", string(dialogue.StateReplan2)},
		{"m3", "Ставрополь", string(dialogue.StateLeadPhonePrompt)},
		{"m4", "+7 900 123-45-67", string(dialogue.StateLeadTime)},
	}
	for _, s := range steps {
		h.clock.Advance(10 * time.Second)
		require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(100, s.mid, s.text)))
		rec, ok := h.store.Conversation(100)
		require.True(t, ok)
		assert.Equal(t, s.state, rec.State, "after %q", s.text)
	}

	h.transport.reset()
	require.NoError(t, h.d.HandleUpdate(ctx, callbackUpdate(100, "cb-1", "Не важно")))

	leads := h.store.Leads()
	require.Len(t, leads, 1)
	assert.Equal(t, "Перепланировка – жилое – Ставрополь", leads[0].Topic)
	assert.Equal(t, "+7 900 123-45-67", leads[0].Phone)
	assert.Equal(t, string(dialogue.BranchReplan), leads[0].Branch)

	rec, ok := h.store.Conversation(100)
	require.True(t, ok)
	assert.Equal(t, store.InitialState, rec.State)
	assert.Empty(t, rec.Topic)
	assert.Equal(t, h.clock.Now().UTC(), rec.UpdatedAt)

	msgs = h.transport.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(100), msgs[0].UserID)
	assert.Contains(t, msgs[0].Message.Text, "Заявка принята")
	assert.Equal(t, int64(operatorID), msgs[1].UserID)
	assert.Contains(t, msgs[1].Message.Text, "[ЗАЯВКА]")
	assert.Equal(t, []string{"cb-1|" + CallbackAck}, h.transport.answers)
}

func TestDispatcher_DebouncedStartStillResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.d.HandleUpdate(ctx, startUpdate(5, 1)))
	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(5, "m1", "Перепланировка")))
	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.d.HandleUpdate(ctx, startUpdate(5, 2)))

	assert.Len(t, h.transport.messages(), 2, "menu once plus the branch prompt")
	rec, _ := h.store.Conversation(5)
	assert.Equal(t, store.InitialState, rec.State)
	assert.Equal(t, 3, h.store.SaveCount())
}

func TestDispatcher_DropsRedelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.d.HandleUpdate(ctx, startUpdate(7, 1)))
	h.clock.Advance(time.Minute / 2)
	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(7, "dup", "Перепланировка")))
	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(7, "dup", "Перепланировка")))

	assert.Len(t, h.transport.messages(), 2)
	assert.Equal(t, 2, h.store.SaveCount())
}

func TestDispatcher_StorageErrorAbortsBeforeSend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	h.store.FailOn(store.OpSaveConversation, boom)

	err := h.d.HandleUpdate(ctx, textUpdate(8, "m1", "/start"))
	require.Error(t, err)
	var storageErr *store.StorageError
	assert.True(t, errors.As(err, &storageErr))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.transport.messages())

	// the redelivery is processed once storage recovers
	h.store.FailOn(store.OpSaveConversation, nil)
	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(8, "m1", "/start")))
	assert.Len(t, h.transport.messages(), 1)
}

func TestDispatcher_LeadFailureKeepsConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seed := &store.Conversation{
		UserID: 11,
		State:  string(dialogue.StateLeadTime),
		Topic:  "Снижение налога/аренды",
		Branch: string(dialogue.BranchTax),
		Data:   map[string]string{"tax_input": "26:12:1"},
		Phone:  "+79001234567",
	}
	require.NoError(t, h.store.SaveConversation(ctx, seed))

	h.store.FailOn(store.OpAppendLead, errors.New("locked"))
	err := h.d.HandleUpdate(ctx, textUpdate(11, "m1", "Не важно"))
	require.Error(t, err)

	rec, _ := h.store.Conversation(11)
	assert.Equal(t, string(dialogue.StateLeadTime), rec.State)
	assert.Equal(t, "+79001234567", rec.Phone)
	assert.Empty(t, h.transport.messages())
	assert.Empty(t, h.store.Leads())
}

func TestDispatcher_CallbackAlwaysAcknowledged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// unrecognized payload in START still gets an ack
	require.NoError(t, h.d.HandleUpdate(ctx, callbackUpdate(12, "cb-a", "что-то")))
	assert.Equal(t, []string{"cb-a|" + CallbackAck}, h.transport.answers)

	// and so does a press that fails in storage
	h.store.FailOn(store.OpGetConversation, errors.New("gone"))
	require.Error(t, h.d.HandleUpdate(ctx, callbackUpdate(12, "cb-b", "Перепланировка")))
	assert.Equal(t, []string{"cb-a|" + CallbackAck, "cb-b|" + CallbackAck}, h.transport.answers)
}

func TestDispatcher_AckFailureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.transport.ackErr = errors.New("callback expired")

	require.NoError(t, h.d.HandleUpdate(context.Background(), callbackUpdate(13, "cb-x", "Перепланировка")))
	assert.Len(t, h.transport.messages(), 1)
}

func TestDispatcher_RetriesWithoutLinks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.transport.sendErr = func(_ int64, msg dialogue.Message) error {
		if msg.HasLinks() {
			return &maxapi.APIError{Method: "POST", Path: "/messages", Status: 400, Body: "invalid url"}
		}
		return nil
	}

	seed := &store.Conversation{UserID: 14, State: string(dialogue.StateLeadTime), Branch: string(dialogue.BranchContact), Topic: "Связаться с юристом", Phone: "+79001234567"}
	require.NoError(t, h.store.SaveConversation(ctx, seed))

	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(14, "m1", "Не важно")))

	msgs := h.transport.messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Message.HasLinks())
	assert.Contains(t, msgs[0].Message.Text, "Заявка принята")
	assert.Equal(t, int64(operatorID), msgs[1].UserID)
	assert.Equal(t, 3, h.transport.attempts)
}

func TestDispatcher_SendFailureAfterSave(t *testing.T) {
	h := newHarness(t)
	h.transport.sendErr = func(int64, dialogue.Message) error { return errors.New("timeout") }

	err := h.d.HandleUpdate(context.Background(), textUpdate(15, "m1", "меню"))
	require.Error(t, err)

	rec, ok := h.store.Conversation(15)
	require.True(t, ok, "state is saved before sending")
	assert.False(t, rec.LastMenuAt.IsZero())
}

func TestDispatcher_NoOperatorSkipsNotify(t *testing.T) {
	h := newHarness(t)
	h.d.operator = 0
	ctx := context.Background()

	seed := &store.Conversation{UserID: 16, State: string(dialogue.StateLeadTime), Branch: string(dialogue.BranchContact), Topic: "Связаться с юристом", Phone: "+79001234567"}
	require.NoError(t, h.store.SaveConversation(ctx, seed))

	require.NoError(t, h.d.HandleUpdate(ctx, textUpdate(16, "m1", "Не важно")))
	msgs := h.transport.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(16), msgs[0].UserID)
	assert.Len(t, h.store.Leads(), 1)
}

func TestDispatcher_IgnoredUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bot := textUpdate(17, "m1", "hello")
	bot.Message.Sender.IsBot = true

	for _, u := range []maxapi.Update{
		bot,
		textUpdate(17, "m2", "   "),
		{UpdateType: "message_edited"},
		{UpdateType: maxapi.UpdateBotStarted},
	} {
		require.NoError(t, h.d.HandleUpdate(ctx, u))
	}
	assert.Empty(t, h.transport.messages())
	assert.Zero(t, h.store.SaveCount())
}

func TestDispatcher_HandleUpdatesJoinsErrors(t *testing.T) {
	h := newHarness(t)
	h.store.FailOn(store.OpGetConversation, errors.New("x"))

	err := h.d.HandleUpdates(context.Background(), []maxapi.Update{
		textUpdate(1, "a", "меню"),
		textUpdate(2, "b", "меню"),
	})
	require.Error(t, err)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
}

func TestDispatcher_ConcurrentUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			assert.NoError(t, h.d.HandleUpdate(ctx, textUpdate(userID, "", "Перепланировка")))
			assert.NoError(t, h.d.HandleUpdate(ctx, textUpdate(userID, "", "Жилое")))
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= 20; i++ {
		rec, ok := h.store.Conversation(i)
		require.True(t, ok)
		assert.Equal(t, string(dialogue.StateReplan2), rec.State)
	}
	assert.Zero(t, h.d.locks.size())
}
