package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gatherpoint/gatherpoint/internal/platform/timeouts"
	"github.com/gatherpoint/gatherpoint/internal/services/events/qrtoken"
	"github.com/gatherpoint/gatherpoint/internal/services/events/storage/sqlite"
)

// Config holds events server runtime configuration.
type Config struct {
	HTTPAddr               string
	DBPath                 string
	ShutdownTimeout        time.Duration
	VerifyAttendanceTokens bool
}

// Run opens the store, wires the server, and serves HTTP until the context
// ends.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if cfg.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open events store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close events store: %v", err)
		}
	}()

	var opts []ServerOption
	if cfg.VerifyAttendanceTokens {
		verifier, err := qrtoken.LoadVerifierConfigFromEnv(nil)
		if err != nil {
			return fmt.Errorf("load attendance token verifier: %w", err)
		}
		opts = append(opts, WithTokenVerifier(verifier))
	}

	server := NewServerFromStore(store, opts...)
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	log.Printf("events server listening on %s", cfg.HTTPAddr)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		err := httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources and ends every live subscription.
func (s *Server) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.Close()
}
