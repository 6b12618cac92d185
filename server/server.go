// Package server exposes the support chat and voice call endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/llm"
	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/utils"
	"github.com/teilomillet/supportdesk/voice"
)

// Generator produces one assistant reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []providers.Message, systemPrompt string) (*llm.Response, error)
}

// CallCreator creates realtime voice calls.
type CallCreator interface {
	Configured() bool
	CreateCall(ctx context.Context, req voice.CallRequest) (*voice.Call, error)
}

type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	knowledge knowledge.Source
	chat      Generator
	voice     CallCreator
	window    llm.HistoryWindow
	limiter   *rate.Limiter
	registry  *prometheus.Registry
	metrics   *httpMetrics
	logger    utils.Logger

	// generateBudget bounds one chat generation across every provider attempt.
	generateBudget time.Duration
}

// writeMargin is the time left after the generation budget to render and
// flush the response.
const writeMargin = 10 * time.Second

type Option func(*Server)

// WithVoice enables the voice call endpoint backend.
func WithVoice(c CallCreator) Option {
	return func(s *Server) { s.voice = c }
}

// WithHistoryWindow overrides the history window derived from the config.
func WithHistoryWindow(w llm.HistoryWindow) Option {
	return func(s *Server) { s.window = w }
}

// WithGenerateBudget bounds the time one chat request may spend in the
// provider chain. The server write deadline is derived from it, so an
// exhausted chain still gets its error response delivered.
func WithGenerateBudget(d time.Duration) Option {
	return func(s *Server) { s.generateBudget = d }
}

// WithRegistry serves /metrics from reg and registers the HTTP collectors on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func New(cfg *config.Config, source knowledge.Source, chat Generator, logger utils.Logger, opts ...Option) *Server {
	s := &Server{
		echo:      echo.New(),
		cfg:       cfg,
		knowledge: source,
		chat:      chat,
		window:    llm.HistoryWindow{MaxMessages: cfg.HistoryLimit},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.generateBudget == 0 {
		// Worst case: every configured provider runs into its timeout.
		s.generateBudget = time.Duration(max(len(cfg.Providers), 1)) * cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	s.metrics = newHTTPMetrics(s.registry)

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(middleware.Recover())
	e.Use(s.metrics.middleware)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Warn("Request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			s.logger.Debug("Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	api := e.Group("/api", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	api.POST("/chat", s.handleChat, s.rateLimit)
	api.OPTIONS("/chat", noContent)
	api.POST("/voice/create-call", s.handleCreateCall)
	api.OPTIONS("/voice/create-call", noContent)
	api.GET("/knowledge", s.handleKnowledge)
	api.GET("/schema", s.handleSchema)

	e.GET("/widget.js", s.handleWidget)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

func noContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.writeTimeout(),
	}
	s.echo.Server = srv

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Shutdown failed", "error", err)
		}
	}()

	s.logger.Info("Support desk server starting", "addr", s.cfg.ListenAddr)
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Support desk server stopped")
	return nil
}

// writeTimeout is zero, meaning no deadline, when generation is unbounded.
func (s *Server) writeTimeout() time.Duration {
	if s.generateBudget <= 0 {
		return 0
	}
	return s.generateBudget + writeMargin
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, msgRateLimited)
		}
		return next(c)
	}
}
