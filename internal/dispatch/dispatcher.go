// ABOUTME: Routes normalized updates through the engine and executes its actions
// ABOUTME: Persists before sending, acknowledges callbacks and drops redeliveries

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/intake-bot/internal/dedupe"
	"github.com/2389/intake-bot/internal/dialogue"
	"github.com/2389/intake-bot/internal/maxapi"
	"github.com/2389/intake-bot/internal/metrics"
	"github.com/2389/intake-bot/internal/store"
)

// CallbackAck is the notification shown when a button press is acknowledged.
const CallbackAck = "Готово"

// Update results reported to metrics.
const (
	resultProcessed = "processed"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultError     = "error"
)

// Transport is the outbound half of the platform client.
type Transport interface {
	SendMessage(ctx context.Context, userID int64, msg dialogue.Message) error
	AnswerCallback(ctx context.Context, callbackID, notification string) error
}

// Options configures a Dispatcher.
type Options struct {
	Store     store.Store
	Engine    *dialogue.Engine
	Transport Transport
	// Dedupe drops redelivered updates. Nil disables the check.
	Dedupe *dedupe.Cache[string]
	// Metrics defaults to metrics.Nop.
	Metrics metrics.Recorder
	// OperatorUserID receives lead notifications. Zero skips them.
	OperatorUserID int64
	Now            func() time.Time
	Logger         *slog.Logger
}

// Dispatcher owns the load, transition, persist, send pipeline.
type Dispatcher struct {
	store     store.Store
	engine    *dialogue.Engine
	transport Transport
	dedupe    *dedupe.Cache[string]
	metrics   metrics.Recorder
	operator  int64
	now       func() time.Time
	locks     *userLocks
	logger    *slog.Logger
}

// New checks the required collaborators and returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("dispatch: engine is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("dispatch: transport is required")
	}

	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		store:     opts.Store,
		engine:    opts.Engine,
		transport: opts.Transport,
		dedupe:    opts.Dedupe,
		metrics:   rec,
		operator:  opts.OperatorUserID,
		now:       now,
		locks:     newUserLocks(),
		logger:    logger.With("component", "dispatch"),
	}, nil
}

// HandleUpdates processes a batch in order. Every update is attempted; the
// returned error joins the individual failures.
func (d *Dispatcher) HandleUpdates(ctx context.Context, updates []maxapi.Update) error {
	var errs []error
	for _, u := range updates {
		if err := d.HandleUpdate(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleUpdate normalizes and processes one update. Ignored and duplicate
// updates return nil.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u maxapi.Update) error {
	ev, ok := NormalizeUpdate(u)
	if !ok {
		d.metrics.ObserveUpdate(updateLabel(u.UpdateType), resultIgnored)
		d.logger.Debug("update ignored", "update_type", u.UpdateType)
		return nil
	}
	return d.Process(ctx, ev)
}

// Process runs one event through the pipeline. A storage failure aborts
// before anything is sent and is returned; the redelivery key is released so
// the platform's retry is processed. Send failures are returned after the
// state has been saved.
func (d *Dispatcher) Process(ctx context.Context, ev Event) error {
	start := d.now()
	defer func() { d.metrics.ObserveHandle(d.now().Sub(start)) }()

	if ev.Key != "" && d.dedupe != nil && d.dedupe.Observe(ev.Key) {
		d.metrics.ObserveUpdate(ev.UpdateType, resultDuplicate)
		d.logger.Debug("duplicate update dropped", "key", ev.Key, "user_id", ev.UserID)
		return nil
	}

	if ev.Kind == EventCallback && ev.CallbackID != "" {
		defer d.ackCallback(ctx, ev.CallbackID)
	}

	err := d.process(ctx, ev)
	if err != nil {
		var storageErr *store.StorageError
		if ev.Key != "" && d.dedupe != nil && errors.As(err, &storageErr) {
			d.dedupe.Forget(ev.Key)
		}
		d.metrics.ObserveUpdate(ev.UpdateType, resultError)
		d.logger.Error("processing update failed",
			"user_id", ev.UserID,
			"kind", ev.Kind.String(),
			"error", err,
		)
		return err
	}

	d.metrics.ObserveUpdate(ev.UpdateType, resultProcessed)
	return nil
}

func (d *Dispatcher) process(ctx context.Context, ev Event) error {
	unlock := d.locks.lock(ev.UserID)
	defer unlock()

	rec, err := d.store.GetConversation(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("loading conversation %d: %w", ev.UserID, err)
	}
	conv := d.engine.Flow().Restore(rec)

	in := dialogue.TextInput(ev.Text)
	if ev.Kind == EventSessionStart {
		in = dialogue.SessionStart()
	}

	res := d.engine.Handle(conv, in)
	d.metrics.ObserveTransition(string(conv.State), string(res.Outcome))
	d.logger.Debug("transition",
		"user_id", ev.UserID,
		"from", conv.State,
		"to", res.Conversation.State,
		"outcome", res.Outcome,
	)

	if res.Lead != nil {
		if err := d.store.AppendLead(ctx, res.Lead); err != nil {
			return fmt.Errorf("recording lead for %d: %w", ev.UserID, err)
		}
		d.metrics.IncLead(res.Lead.Branch)
		d.logger.Info("lead recorded",
			"user_id", ev.UserID,
			"lead_id", res.Lead.ID,
			"topic", res.Lead.Topic,
		)
	}

	if res.Persist {
		next := res.Conversation
		next.UpdatedAt = d.now().UTC()
		if err := d.store.SaveConversation(ctx, next.Record()); err != nil {
			return fmt.Errorf("saving conversation %d: %w", ev.UserID, err)
		}
	}

	return d.execute(ctx, ev.UserID, res.Actions)
}

// execute sends actions in order. A failed action does not stop the ones
// after it.
func (d *Dispatcher) execute(ctx context.Context, userID int64, actions []dialogue.Action) error {
	var errs []error
	for _, a := range actions {
		target := userID
		if a.Kind == dialogue.ActionNotifyOperator {
			if d.operator == 0 {
				d.logger.Warn("operator notification skipped: no operator configured", "user_id", userID)
				continue
			}
			target = d.operator
		}
		if err := d.send(ctx, a.Kind.String(), target, a.Message); err != nil {
			errs = append(errs, fmt.Errorf("%s to %d: %w", a.Kind, target, err))
		}
	}
	return errors.Join(errs...)
}

// send delivers msg, retrying once without link buttons when the first
// attempt fails and the message carries any.
func (d *Dispatcher) send(ctx context.Context, kind string, userID int64, msg dialogue.Message) error {
	err := d.transport.SendMessage(ctx, userID, msg)
	if err == nil {
		d.metrics.ObserveOutbound(kind, "ok")
		return nil
	}
	if !msg.HasLinks() || ctx.Err() != nil {
		d.metrics.ObserveOutbound(kind, "error")
		return err
	}

	d.logger.Warn("send failed, retrying without link buttons", "user_id", userID, "error", err)
	if retryErr := d.transport.SendMessage(ctx, userID, msg.WithoutLinks()); retryErr != nil {
		d.metrics.ObserveOutbound(kind, "error")
		return errors.Join(err, retryErr)
	}
	d.metrics.ObserveOutbound(kind, "retried")
	return nil
}

func (d *Dispatcher) ackCallback(ctx context.Context, callbackID string) {
	if err := d.transport.AnswerCallback(ctx, callbackID, CallbackAck); err != nil {
		d.metrics.ObserveOutbound("answer", "error")
		d.logger.Warn("answering callback failed", "callback_id", callbackID, "error", err)
		return
	}
	d.metrics.ObserveOutbound("answer", "ok")
}

// updateLabel keeps the metric label set bounded.
func updateLabel(updateType string) string {
	switch updateType {
	case maxapi.UpdateBotStarted, maxapi.UpdateMessageCreated, maxapi.UpdateMessageCallback:
		return updateType
	default:
		return "other"
	}
}
