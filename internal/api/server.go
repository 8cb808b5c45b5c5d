package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"permde/internal"
	"permde/internal/difftest"
)

// Options configures a Server.
type Options struct {
	Defaults       difftest.Config
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	GinMode        string
}

// Server exposes the differential-mean test over HTTP.
type Server struct {
	router  *gin.Engine
	handler *TestHandler
	logger  *internal.Logger
}

// NewServer creates the router with its routes registered.
func NewServer(tester *difftest.Tester, opts Options, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router:  router,
		handler: NewTestHandler(tester, opts, logger),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/v1")
	v1.GET("/options", s.handler.GetOptions)
	v1.POST("/diff-mean-test", s.handler.PostDiffMeanTest)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}
