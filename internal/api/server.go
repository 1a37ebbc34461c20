package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alicas/linecall-agent/internal/preview"
	"github.com/alicas/linecall-agent/internal/session"
	"github.com/alicas/linecall-agent/internal/workflow"
)

// BackendProber reports whether the analysis backend answers.
type BackendProber interface {
	Ping(ctx context.Context) (string, error)
	BaseURL() string
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Controller *workflow.Controller
	Previews   *preview.Server
	Uploads    *preview.UploadCache
	Repository session.Repository
	Backend    BackendProber
	// RunContext bounds background runs started over the API; it is
	// cancelled when the agent shuts down.
	RunContext     context.Context
	MaxUploadBytes int64
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,

			ReadHeaderTimeout: 15 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// URL is the page address; with a token the browser is logged in on first
// visit.
func (s *Server) URL(token string) string {
	u := "http://" + s.httpServer.Addr + "/"
	if token != "" {
		u += "?token=" + token
	}
	return u
}
