// Package server exposes the converter over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/wireconv/internal/observability"
	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/danmuck/wireconv/internal/protocol/frame"
	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Converter is the decode and schema surface the routes need.
type Converter interface {
	Decode(transport, msg string) (protocol.Result, error)
	Reload(ctx context.Context) (schema.Stats, error)
	Index() *schema.Index
	Ready() bool
}

type Options struct {
	CORSOrigins []string
	// MaxBodyBytes caps the raw parse body. Zero means 4 bytes per
	// character of the largest frame.
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	conv    Converter
	router  *gin.Engine
	maxBody int64
	opts    Options
}

func Appear(id, addr string, conv Converter, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(observability.ComponentLogger(id, "http")))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 4 * int64(frame.MaxDeclared)
	}
	return &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		conv:     conv,
		router:   r,
		maxBody:  maxBody,
		opts:     opts,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve registers the routes and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.RegisterRoutes()
	hs := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Serve(ln)
	}()
	log.Info().Str("service", s.ID).Str("addr", ln.Addr().String()).Msg("server.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Str("service", s.ID).Err(err).Msg("server.Serve shutdown")
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
