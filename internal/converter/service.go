// Package converter runs the decode service behind its HTTP and TCP surfaces.
package converter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wireconv/internal/observability"
	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/danmuck/wireconv/internal/protocol/frame"
	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/store"
	"github.com/danmuck/wireconv/internal/store/sqlite"
	"github.com/danmuck/wireconv/internal/store/yamlfile"
	"github.com/rs/zerolog/log"
)

// Schema drivers accepted by ServiceConfig.SchemaDriver.
const (
	DriverSQLite = "sqlite"
	DriverYAML   = "yaml"
)

var (
	ErrUnknownDriver = errors.New("converter: unknown schema driver")
	ErrNoSchemaPath  = errors.New("converter: schema path is required")
	ErrNoListeners   = errors.New("converter: neither http_addr nor tcp_addr is set")
	ErrNoSource      = errors.New("converter: no schema source")
)

// ServiceConfig configures the converter daemon.
type ServiceConfig struct {
	ID              string
	HTTPAddr        string
	TCPAddr         string
	CORSOrigins     []string
	SchemaDriver    string
	SchemaPath      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageChars int
	ReloadOnSIGHUP  bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ID:              "wireconv.local",
		HTTPAddr:        ":8080",
		TCPAddr:         ":9100",
		CORSOrigins:     nil,
		SchemaDriver:    DriverSQLite,
		SchemaPath:      "wireconv.db",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageChars: frame.MaxDeclared,
		ReloadOnSIGHUP:  true,
	}
}

// WithDefaults fills zero values that have no meaningful zero.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = def.ID
	}
	if strings.TrimSpace(c.SchemaDriver) == "" {
		c.SchemaDriver = def.SchemaDriver
	}
	if c.MaxMessageChars <= 0 || c.MaxMessageChars > frame.MaxDeclared {
		c.MaxMessageChars = def.MaxMessageChars
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	return c
}

func (c ServiceConfig) Validate() error {
	switch c.SchemaDriver {
	case DriverSQLite, DriverYAML:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.SchemaDriver)
	}
	if strings.TrimSpace(c.SchemaPath) == "" {
		return ErrNoSchemaPath
	}
	if strings.TrimSpace(c.HTTPAddr) == "" && strings.TrimSpace(c.TCPAddr) == "" {
		return ErrNoListeners
	}
	return nil
}

// OpenSource opens the schema source named by cfg. The returned close func
// is never nil.
func OpenSource(ctx context.Context, cfg ServiceConfig) (store.Source, func() error, error) {
	path := strings.TrimSpace(cfg.SchemaPath)
	if path == "" {
		return nil, nil, ErrNoSchemaPath
	}
	switch cfg.SchemaDriver {
	case DriverSQLite:
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case DriverYAML:
		return yamlfile.New(path), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.SchemaDriver)
	}
}

// Service owns the schema registry and the decode entry point shared by
// the HTTP and TCP surfaces.
type Service struct {
	cfg ServiceConfig

	registry *schema.Registry
	parser   *protocol.Parser

	source   store.Source
	reloadMu sync.Mutex
	loaded   atomic.Bool
	reloaded atomic.Int64
}

func NewService(src store.Source) *Service {
	return NewServiceWithConfig(DefaultServiceConfig(), src)
}

func NewServiceWithConfig(cfg ServiceConfig, src store.Source) *Service {
	reg := schema.NewRegistry()
	return &Service{
		cfg:      cfg.WithDefaults(),
		registry: reg,
		parser:   protocol.NewParser(reg),
		source:   src,
	}
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

func (s *Service) Registry() *schema.Registry {
	return s.registry
}

func (s *Service) Index() *schema.Index {
	return s.registry.Index()
}

// Ready reports whether at least one schema load has succeeded.
func (s *Service) Ready() bool {
	return s.loaded.Load()
}

// LastReload returns the time of the last successful load, or zero.
func (s *Service) LastReload() time.Time {
	ms := s.reloaded.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Reload rebuilds the index from the source. Reloads are serialized; a
// failed reload leaves the previous index published.
func (s *Service) Reload(ctx context.Context) (schema.Stats, error) {
	if s.source == nil {
		return schema.Stats{}, ErrNoSource
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	if err := store.Load(ctx, s.source, s.registry); err != nil {
		observability.RecordSchemaReload(s.cfg.ID, 0, false)
		log.Error().Str("service", s.cfg.ID).Err(err).Msg("converter.Service.Reload failed")
		return schema.Stats{}, err
	}
	st := s.registry.Index().Stats()
	s.loaded.Store(true)
	s.reloaded.Store(time.Now().UnixMilli())
	observability.RecordSchemaReload(s.cfg.ID, st.TypeCodes, true)
	log.Info().
		Str("service", s.cfg.ID).
		Int("type_codes", st.TypeCodes).
		Int("fields", st.Fields).
		Int("children", st.Children).
		Dur("took", time.Since(start)).
		Msg("converter.Service.Reload ok")
	return st, nil
}

// Decode runs one message through the parser and records the outcome.
func (s *Service) Decode(transport, msg string) (protocol.Result, error) {
	start := time.Now()
	res, err := s.parser.ParseResult(msg)
	outcome := Outcome(err)
	typeCode := res.TypeCode
	if err != nil {
		var de protocol.DecodeError
		if errors.As(err, &de) {
			typeCode = de.TypeCode
		}
	}
	observability.RecordDecode(s.cfg.ID, transport, typeCode, outcome, time.Since(start))
	if err != nil {
		event := log.Warn()
		if !protocol.IsBadRequest(err) {
			event = log.Error()
		}
		event.
			Str("service", s.cfg.ID).
			Str("transport", transport).
			Str("type_code", typeCode).
			Str("outcome", outcome).
			Err(err).
			Msg("converter.Service.Decode rejected")
	}
	return res, err
}

// Outcome maps a decode error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, protocol.ErrEnvelope):
		return observability.OutcomeEnvelope
	case errors.Is(err, protocol.ErrTypeCode):
		return observability.OutcomeTypeCode
	case errors.Is(err, protocol.ErrUnknownSchema):
		return observability.OutcomeUnknownSchema
	case errors.Is(err, protocol.ErrSchemaAuthoring):
		return observability.OutcomeSchemaAuthoring
	default:
		return observability.OutcomeError
	}
}
