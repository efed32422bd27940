package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/health"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/network"
)

const shutdownGrace = 10 * time.Second

// CaptureLister lists stored capture sessions.
type CaptureLister interface {
	Sessions() ([]db.Session, error)
}

// HealthReporter returns the outcome of the latest health checks.
type HealthReporter interface {
	Status() health.Status
}

// Deps are the runtime collaborators the handlers read from and drive.
// Captures and Health may be nil.
type Deps struct {
	Set       *facade.Set
	Connected func() bool
	Captures  CaptureLister
	Health    HealthReporter
	Metrics   *metrics.Metrics
	Version   string
}

// Server is the REST API server for realmlink.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	started  time.Time

	buildOnce sync.Once
	router    *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, deps Deps) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Connected == nil {
		deps.Connected = func() bool { return false }
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		started:  time.Now(),
	}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	s.buildOnce.Do(func() { s.router = s.buildRouter() })
	return s.router
}

// Start serves the API until ctx ends, then drains open requests for up
// to shutdownGrace.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.GetAPI().Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR lets a restart rebind immediately.
	ln, err := network.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	log.Info().Str("addr", addr).Msg("REST API server starting")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("REST API did not drain in time")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	<-stopped
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	api := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := api.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must stay false while AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(api.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
	}

	protected := router.Group("/api")
	protected.Use(RequireToken(api.Token))
	{
		protected.GET("/status", s.handleGetStatus)
		protected.GET("/subsystems", s.handleGetSubsystems)
		protected.GET("/subsystems/:name", s.handleGetSubsystem)
		protected.GET("/captures", s.handleGetCaptures)
		protected.GET("/logs", s.handleGetLogEntries)

		protected.POST("/target", s.handleSelectTarget)
		protected.POST("/combat/attack", s.handleAttack)
		protected.POST("/combat/stop", s.handleStopAttack)
		protected.POST("/auction/search", s.handleAuctionSearch)
		protected.POST("/trade/cancel", s.handleTradeCancel)
		protected.POST("/guild/roster", s.handleGuildRoster)
		protected.POST("/ping", s.handleRealmPing)
		protected.GET("/names/:guid", s.handleResolveName)

		protected.GET("/config", s.handleGetConfig)
		protected.POST("/config", s.handleSetConfig)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "realmlink API is running"})
	})

	return router
}
