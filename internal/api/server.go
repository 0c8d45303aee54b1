package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/bridge"
	"github.com/mkrell/bridgectl/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// Bridge is the slice of the supervisor the command surface needs.
type Bridge interface {
	Send(ctx context.Context, destination string, payload []byte) error
	Status() bridge.Snapshot
}

// Config defines the command-surface endpoint.
type Config struct {
	ListenAddr string
	// AuthToken guards /api routes when non-empty. An empty token leaves
	// the surface open; only do that behind a trusted reverse proxy.
	AuthToken string
}

func DefaultConfig() Config {
	return Config{ListenAddr: ":8088"}
}

// Server hosts the inbound command surface.
type Server struct {
	cfg    Config
	bridge Bridge
	engine *gin.Engine
	logger zerolog.Logger
	start  time.Time
}

func NewServer(cfg Config, b Bridge, logger zerolog.Logger) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		observability.RequestLogger(logger),
		observability.RequestMetrics(),
	)
	s := &Server{
		cfg:    cfg,
		bridge: b,
		engine: engine,
		logger: logger,
		start:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.engine}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("command surface listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
