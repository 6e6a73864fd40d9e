// Package control is the HTTP command surface of the server process: lifecycle
// actions, foreground state, health and metrics.
package control

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/remoteflow/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Dispatcher applies an action. Handle must not block on long-running work.
type Dispatcher interface {
	Handle(ctx context.Context, action Action) error
}

// StateReader exposes the foreground flag.
type StateReader interface {
	Get() bool
}

// Config holds the HTTP options of the control surface. The listener is supplied to Serve.
type Config struct {
	CORSOrigins []string
}

type Server struct {
	router   *gin.Engine
	dispatch Dispatcher
	state    StateReader
	started  time.Time
}

func NewServer(cfg Config, dispatch Dispatcher, state StateReader) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		router:   r,
		dispatch: dispatch,
		state:    state,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "remoteflow",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/foreground", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"active": s.state.Get()})
	})

	// Actions are fire-and-forget: the response only confirms the command was accepted.
	s.router.POST("/actions/:action", func(c *gin.Context) {
		action, err := ParseAction(c.Param("action"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.dispatch.Handle(c.Request.Context(), action); err != nil {
			log.Error().Str("action", string(action)).Err(err).Msg("control.Server action failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("action", string(action)).Msg("control.Server action accepted")
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "action": string(action)})
	})
}

// Serve runs the HTTP server on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info().Str("addr", ln.Addr().String()).Msg("control.Server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		log.Info().Msg("control.Server stopped")
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
