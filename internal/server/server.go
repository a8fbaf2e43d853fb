// ABOUTME: Runtime orchestrator that wires store, engine, dispatcher and transport
// ABOUTME: Runs the polling loop or webhook receiver next to health and metrics endpoints

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/intake-bot/internal/config"
	"github.com/2389/intake-bot/internal/dedupe"
	"github.com/2389/intake-bot/internal/dialogue"
	"github.com/2389/intake-bot/internal/dispatch"
	"github.com/2389/intake-bot/internal/maxapi"
	"github.com/2389/intake-bot/internal/metrics"
	"github.com/2389/intake-bot/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server owns every long-lived component of a running bot.
type Server struct {
	config     *config.Config
	store      store.Store
	client     *maxapi.Client
	dispatcher *dispatch.Dispatcher
	dedupe     *dedupe.Cache[string]
	metrics    *metrics.PrometheusRecorder
	httpServer *http.Server
	logger     *slog.Logger

	ready     atomic.Bool
	closeOnce sync.Once
}

// initStore opens the SQLite store at the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Server from cfg. Nothing touches the network until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	srv, err := newWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return srv, nil
}

func newWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Server, error) {
	client := maxapi.NewClient(maxapi.Options{
		BaseURL:        cfg.Bot.APIBase,
		Token:          cfg.Bot.AccessToken,
		SendRate:       cfg.Bot.SendRate,
		SendBurst:      cfg.Bot.SendBurst,
		RequestTimeout: cfg.Bot.RequestTimeout,
		RenderHTML:     cfg.Bot.MessageFormat == config.FormatHTML,
		Logger:         logger,
	})

	engine, err := dialogue.NewEngine(dialogue.Options{
		MenuDebounce:    cfg.Dialogue.MenuDebounce,
		OperatorChatURL: cfg.Bot.OperatorChatURL,
		PrivacyURL:      cfg.Bot.PrivacyURL,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	cache := dedupe.New[string](cfg.Dialogue.DedupeTTL, cfg.Dialogue.DedupeSize)

	var recorder metrics.Recorder = metrics.Nop{}
	var prom *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusRecorder()
		recorder = prom
	}

	dispatcher, err := dispatch.New(dispatch.Options{
		Store:          s,
		Engine:         engine,
		Transport:      client,
		Dedupe:         cache,
		Metrics:        recorder,
		OperatorUserID: cfg.Bot.OperatorUserID,
		Logger:         logger,
	})
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	srv := &Server{
		config:     cfg,
		store:      s,
		client:     client,
		dispatcher: dispatcher,
		dedupe:     cache,
		metrics:    prom,
		logger:     logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/health/ready", srv.handleReady)

	if prom != nil {
		mux.Handle(cfg.Metrics.Path, prom.Handler())
	}
	if cfg.Transport.Mode == config.ModeWebhook {
		mux.HandleFunc(cfg.Transport.WebhookPath, srv.handleWebhook)
	}

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// Handler exposes the HTTP routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured address and serves until ctx is canceled.
// Returns nil on graceful shutdown, or the first component error.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It verifies the token, registers
// the webhook when configured, then runs the HTTP server and, in polling
// mode, the polling loop. All resources are released before it returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()

	me, err := s.client.GetMe(ctx)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("verifying access token: %w", err)
	}
	s.logger.Info("bot identity verified", "user_id", me.UserID, "username", me.Username)

	types := s.updateTypes()
	if s.config.Transport.Mode == config.ModeWebhook {
		if err := s.client.Subscribe(ctx, s.config.Transport.WebhookURL, s.config.Transport.WebhookSecret, types); err != nil {
			_ = ln.Close()
			return fmt.Errorf("subscribing webhook: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if s.config.Transport.Mode == config.ModePolling {
		g.Go(func() error {
			return s.poll(gctx, types)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.ready.Store(false)
		return s.gracefulShutdown()
	})

	s.ready.Store(true)
	s.logger.Info("bot running", "mode", s.config.Transport.Mode)

	return g.Wait()
}

// gracefulShutdown stops the HTTP server with a fresh context, since the
// run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and releases the store and caches. Safe to
// call after Serve has returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	s.ready.Store(false)

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close releases the store and the dedupe cache exactly once.
func (s *Server) close() error {
	var err error
	s.closeOnce.Do(func() {
		s.dedupe.Close()
		if cerr := s.store.Close(); cerr != nil {
			err = fmt.Errorf("store close: %w", cerr)
		}
	})
	return err
}

func (s *Server) updateTypes() []string {
	if len(s.config.Transport.UpdateTypes) > 0 {
		return s.config.Transport.UpdateTypes
	}
	return maxapi.DefaultUpdateTypes
}

// handleHealth returns 200 OK if the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the token is verified and updates are flowing.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", s.config.Transport.Mode)
}
