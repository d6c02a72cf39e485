package converter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/wireconv/internal/intake"
	"github.com/danmuck/wireconv/internal/protocol/frame"
	"github.com/danmuck/wireconv/internal/server"
	"github.com/rs/zerolog/log"
)

// Run opens the schema source when none was given, loads it, and serves
// until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if s.source == nil {
		src, closeSrc, err := OpenSource(ctx, s.cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeSrc(); err != nil {
				log.Warn().Err(err).Msg("converter.Service.Run close source")
			}
		}()
		s.source = src
	}
	return s.Serve(ctx)
}

// Serve loads the schemas and runs the configured listeners until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	if _, err := s.Reload(ctx); err != nil {
		return fmt.Errorf("converter initial load: %w", err)
	}
	if s.cfg.ReloadOnSIGHUP {
		go s.watchSIGHUP(ctx)
	}

	var (
		listeners []func(context.Context) error
		opened    []net.Listener
	)
	closeOpened := func() {
		for _, ln := range opened {
			_ = ln.Close()
		}
	}
	if addr := strings.TrimSpace(s.cfg.HTTPAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("converter http listen (%s): %w", addr, err)
		}
		opened = append(opened, ln)
		srv := server.Appear(s.cfg.ID, addr, s, server.Options{
			CORSOrigins:  s.cfg.CORSOrigins,
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
		})
		listeners = append(listeners, func(ctx context.Context) error { return srv.Serve(ctx, ln) })
	}
	if addr := strings.TrimSpace(s.cfg.TCPAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			closeOpened()
			return fmt.Errorf("converter tcp listen (%s): %w", addr, err)
		}
		tcp := intake.New(intake.Config{
			Service:      s.cfg.ID,
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
			Limits:       frame.Limits{MaxMessageChars: s.cfg.MaxMessageChars},
		}, s)
		listeners = append(listeners, func(ctx context.Context) error { return tcp.Serve(ctx, ln) })
	}
	if len(listeners) == 0 {
		return ErrNoListeners
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, len(listeners))
	for _, serve := range listeners {
		go func(serve func(context.Context) error) {
			errCh <- serve(ctx)
		}(serve)
	}
	log.Info().
		Str("service", s.cfg.ID).
		Str("http_addr", s.cfg.HTTPAddr).
		Str("tcp_addr", s.cfg.TCPAddr).
		Str("schema_driver", s.cfg.SchemaDriver).
		Msg("converter.Service running")

	var firstErr error
	for range listeners {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		// One listener stopping takes the others down with it.
		cancel()
	}
	log.Info().Str("service", s.cfg.ID).Msg("converter.Service stopped")
	return firstErr
}

func (s *Service) watchSIGHUP(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			log.Info().Str("service", s.cfg.ID).Msg("converter SIGHUP reload")
			_, _ = s.Reload(ctx)
		}
	}
}
