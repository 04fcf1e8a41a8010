// Package session implements the unit of work: a Session tracks the instances
// it loads or is given, and SaveChanges turns their pending state into one
// ordered, atomic batch of INSERT, UPDATE and DELETE statements.
//
// A Session is used by one caller at a time and must be closed. The Factory
// that opens sessions is safe for concurrent use.
package session

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"cookbook/internal/core/id"
	"cookbook/internal/core/store"
	"cookbook/internal/infrastructure/cache"
	"cookbook/internal/metadata"
	"cookbook/internal/metrics"
	"cookbook/internal/tracking"
	"cookbook/pkg/logger"
)

var tracer = otel.Tracer("cookbook/session")

// Config wires a Factory.
type Config struct {
	Registry *metadata.Registry
	Backend  store.Backend

	// Logger defaults to logger.Default().
	Logger *logger.Logger

	// Metrics may be nil.
	Metrics *metrics.Collector

	// Programs caches compiled Local predicates; one is created when nil.
	Programs *cache.Programs

	// Hooks run inside the save transaction after all statements succeeded.
	Hooks []SaveHook

	// LogStatements logs every statement at info level instead of debug.
	LogStatements bool
}

// Factory opens sessions over one registry and backend.
type Factory struct {
	cfg Config
	log *logger.Logger
}

// NewFactory validates cfg and fills defaults.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Programs == nil {
		programs, err := cache.NewPrograms(10 * time.Minute)
		if err != nil {
			return nil, err
		}
		cfg.Programs = programs
	}
	return &Factory{cfg: cfg, log: cfg.Logger.WithComponent("session")}, nil
}

// Registry returns the registry sessions map instances with.
func (f *Factory) Registry() *metadata.Registry { return f.cfg.Registry }

// Backend returns the backend sessions execute on.
func (f *Factory) Backend() store.Backend { return f.cfg.Backend }

// Option configures one session.
type Option func(*Session)

// WithNoTracking makes queries return detached instances by default.
func WithNoTracking() Option {
	return func(s *Session) { s.noTracking = true }
}

// WithoutAutoDetectChanges skips the snapshot diff at the start of
// SaveChanges; callers then report changes through SetValue, MarkModified or
// an explicit DetectChanges.
func WithoutAutoDetectChanges() Option {
	return func(s *Session) { s.autoDetect = false }
}

// Open starts a new session. It performs no I/O.
func (f *Factory) Open(ctx context.Context, opts ...Option) *Session {
	s := &Session{
		id:         id.New().String(),
		factory:    f,
		tracker:    tracking.New(f.cfg.Registry),
		autoDetect: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	f.log.WithContext(s.scope(ctx)).Debugw("session opened", "no_tracking", s.noTracking)
	return s
}

// Close closes the backend. Sessions must be closed first.
func (f *Factory) Close() error {
	return f.cfg.Backend.Close()
}
