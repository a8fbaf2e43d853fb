// ABOUTME: Long-polling loop over GET /updates with marker tracking
// ABOUTME: Backs off after transport errors and never stops on processing errors

package server

import (
	"context"
	"time"
)

// poll fetches updates until ctx is canceled. Processing errors are logged
// and the marker still advances; the dispatcher has already reported them.
func (s *Server) poll(ctx context.Context, types []string) error {
	var marker *int64
	backoff := s.config.Transport.PollBackoff

	s.logger.Info("polling for updates",
		"timeout", s.config.Transport.PollTimeout,
		"limit", s.config.Transport.PollLimit,
	)

	for ctx.Err() == nil {
		list, err := s.client.GetUpdates(ctx, marker, s.config.Transport.PollTimeout, s.config.Transport.PollLimit, types)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Warn("polling updates failed", "error", err, "backoff", backoff)
			if !sleepContext(ctx, backoff) {
				break
			}
			continue
		}

		if len(list.Updates) > 0 {
			s.logger.Debug("updates received", "count", len(list.Updates))
			if err := s.dispatcher.HandleUpdates(ctx, list.Updates); err != nil {
				s.logger.Error("processing updates", "error", err)
			}
		}
		if list.Marker != nil {
			marker = list.Marker
		}
	}

	s.logger.Info("polling stopped")
	return nil
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
