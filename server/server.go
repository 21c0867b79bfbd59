// Package server exposes the clone pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Cloner produces a clone of a URL.
type Cloner interface {
	Generate(ctx context.Context, rawURL string) (*core.CloneResult, error)
}

// Options configures the Server.
type Options struct {
	// AllowedOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS.
	AllowedOrigin string
	// Gatherer backs /metrics. Nil omits the endpoint.
	Gatherer prometheus.Gatherer
}

// Server serves /generate, /health and /metrics.
type Server struct {
	cloner Cloner
	opts   Options
	log    zerolog.Logger
	engine *gin.Engine
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	URL string `json:"url" binding:"required"`
}

// New creates a Server.
func New(cloner Cloner, opts Options, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cloner: cloner,
		opts:   opts,
		log:    log.With().Str("component", "server").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	if opts.AllowedOrigin != "" {
		r.Use(cors(opts.AllowedOrigin))
	}

	r.POST("/generate", s.handleGenerate)
	r.GET("/health", s.handleHealth)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a 'url' field"})
		return
	}

	result, err := s.cloner.Generate(c.Request.Context(), req.URL)
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			s.log.Error().Err(err).Str("url", req.URL).Int("status", status).Msg("generate failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pageclone"})
}

// statusOf maps a pipeline error to an HTTP status.
func statusOf(err error) int {
	var invalid *core.InvalidInputError
	var fetchErr *core.FetchError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &fetchErr):
		if fetchErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, core.ErrBudgetExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads this.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
