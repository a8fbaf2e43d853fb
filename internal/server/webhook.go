// ABOUTME: HTTP handler for platform webhook deliveries
// ABOUTME: Checks the shared secret, parses the batch and hands it to the dispatcher

package server

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/2389/intake-bot/internal/maxapi"
)

// SecretHeader carries the webhook secret registered at subscription time.
const SecretHeader = "X-Max-Bot-Api-Secret"

const maxWebhookBody = 1 << 20

// handleWebhook answers 200 "OK" once every update in the body has been
// processed and 500 "ERROR" otherwise, so the platform redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !s.checkSecret(r) {
		s.logger.Warn("webhook rejected: bad secret", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("reading webhook body", "error", err)
		writeStatus(w, http.StatusInternalServerError, "ERROR")
		return
	}

	updates, err := maxapi.ParsePayload(body)
	if err != nil {
		s.logger.Warn("parsing webhook body", "error", err)
		writeStatus(w, http.StatusInternalServerError, "ERROR")
		return
	}

	// processing outlives a dropped connection so state and sends stay paired
	ctx := context.WithoutCancel(r.Context())
	if err := s.dispatcher.HandleUpdates(ctx, updates); err != nil {
		writeStatus(w, http.StatusInternalServerError, "ERROR")
		return
	}
	writeStatus(w, http.StatusOK, "OK")
}

func (s *Server) checkSecret(r *http.Request) bool {
	want := s.config.Transport.WebhookSecret
	if want == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeStatus(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
