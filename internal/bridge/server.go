package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server hosts the feed, settings API and metrics on one listener.
type Server struct {
	face   *FaceBridge
	server *http.Server
	logger zerolog.Logger
}

// NewServer mounts the bridges. logs may be nil.
func NewServer(addr string, face *FaceBridge, settings *SettingsBridge, logs *LogBridge, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", face)
	mux.HandleFunc("/api/settings", settings.handleSettings)
	mux.HandleFunc("/api/audio", settings.handleAudio)
	mux.HandleFunc("/api/state", settings.handleState)
	if logs != nil {
		mux.HandleFunc("/api/logs", logs.handleLogs)
		mux.HandleFunc("/api/system", logs.handleSystem)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"clients": face.ClientCount(),
		})
	})

	return &Server{
		face: face,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	faceErr := s.face.Close(shutdownCtx)
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return faceErr
}
