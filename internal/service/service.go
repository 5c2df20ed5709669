// Package service exposes the memory engine's operations to transport
// layers: saving turns, retrieving context, running rollups, and erasing
// users. It owns cross-cutting concerns — write mirroring into the semantic
// index and session cache, metrics, and the erase ordering contract.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/lunavale/mnemo/internal/observe"
	"github.com/lunavale/mnemo/internal/retrieval"
	"github.com/lunavale/mnemo/internal/rollup"
	"github.com/lunavale/mnemo/internal/sessioncache"
	"github.com/lunavale/mnemo/pkg/memory"
)

// SessionCache is the optional short-term mirror consumed by the service.
// [sessioncache.Cache] implements it; tests substitute doubles.
type SessionCache interface {
	RecordTurn(ctx context.Context, userID, role, text string, at time.Time)
	Erase(ctx context.Context, userID string) error
}

var _ SessionCache = (*sessioncache.Cache)(nil)

// Service is the exported surface of the memory engine.
type Service struct {
	turns     memory.TurnStore
	users     memory.UserDirectory
	semantic  memory.SemanticIndex
	engine    *retrieval.Engine
	pipeline  *rollup.Pipeline
	scheduler *rollup.Scheduler
	cache     SessionCache
	metrics   *observe.Metrics
	logger    *slog.Logger

	botName string
	now     func() time.Time
}

// Option is a functional option for Service.
type Option func(*Service)

// WithSessionCache attaches the short-term Redis mirror. Without it, session
// mirroring is skipped.
func WithSessionCache(cache SessionCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithMetrics attaches metric instruments; without it the service records
// nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBotName sets the assistant display name used when mirroring assistant
// turns into the semantic index.
func WithBotName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.botName = name
		}
	}
}

// withClock replaces the wall clock, for tests.
func withClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs the service over its collaborators.
func New(
	turns memory.TurnStore,
	users memory.UserDirectory,
	semantic memory.SemanticIndex,
	engine *retrieval.Engine,
	pipeline *rollup.Pipeline,
	scheduler *rollup.Scheduler,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		turns:     turns,
		users:     users,
		semantic:  semantic,
		engine:    engine,
		pipeline:  pipeline,
		scheduler: scheduler,
		logger:    logger,
		botName:   "Assistant",
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SaveTurn durably appends one conversation turn, then mirrors it into the
// semantic index and the session cache. The timestamp is the local
// wall-clock time captured here, so rollup windows are stable regardless of
// the database's timezone. Only the durable append can fail; mirror
// failures are logged and swallowed.
func (s *Service) SaveTurn(ctx context.Context, userID, role, text string) error {
	ctx, span := observe.StartSpan(ctx, "service.SaveTurn")
	defer span.End()

	at := s.now()
	if err := s.turns.Append(ctx, userID, role, text, at); err != nil {
		return fmt.Errorf("service: save turn: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TurnsSaved.Add(ctx, 1, metric.WithAttributes(observe.Attr("role", role)))
	}

	fragment := s.speakerLabel(role) + ": " + text
	meta := map[string]string{
		"role":      role,
		"timestamp": at.Format(time.DateTime),
	}
	if err := s.semantic.Upsert(ctx, userID, fragment, meta); err != nil {
		s.logger.Warn("semantic index upsert failed", "user_id", userID, "error", err)
	}

	if s.cache != nil {
		s.cache.RecordTurn(ctx, userID, role, text, at)
	}
	return nil
}

// RetrieveContext produces the ordered memory lines to surface as context
// for userID's query. Degraded dependencies yield fewer lines, never an
// error.
func (s *Service) RetrieveContext(ctx context.Context, userID, query string) []string {
	ctx, span := observe.StartSpan(ctx, "service.RetrieveContext")
	defer span.End()

	start := s.now()
	lines, strategy := s.engine.RetrieveContext(ctx, userID, query)
	if s.metrics != nil {
		s.metrics.RecordRetrieval(ctx, string(strategy), s.now().Sub(start).Seconds())
	}
	return lines
}

// RunRollup executes the rollup of the given kind for every known user.
func (s *Service) RunRollup(ctx context.Context, kind memory.SummaryKind) error {
	ctx, span := observe.StartSpan(ctx, "service.RunRollup")
	defer span.End()

	start := s.now()
	err := s.pipeline.Run(ctx, kind)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordRollupRun(ctx, string(kind), status, s.now().Sub(start).Seconds())
	}
	return err
}

// ReconcileMissedRollups runs the startup catch-up for rollups missed
// during downtime.
func (s *Service) ReconcileMissedRollups(ctx context.Context) error {
	return s.scheduler.Reconcile(ctx)
}

// RecentHistory returns the last limit turns for userID in chronological
// order.
func (s *Service) RecentHistory(ctx context.Context, userID string, limit int) ([]memory.Turn, error) {
	turns, err := s.turns.Recent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: recent history: %w", err)
	}
	return turns, nil
}

// EraseUser removes every trace of userID across all storage layers, in
// the order semantic index → session cache → structured store. Failures in
// the first two are logged and swallowed — orphaned vectors and stale cache
// keys are recoverable — but the structured store is authoritative and its
// failure is returned.
func (s *Service) EraseUser(ctx context.Context, userID string) error {
	ctx, span := observe.StartSpan(ctx, "service.EraseUser")
	defer span.End()

	if err := s.semantic.DropCollection(ctx, userID); err != nil {
		s.logger.Warn("semantic index erase failed", "user_id", userID, "error", err)
	}
	if s.cache != nil {
		if err := s.cache.Erase(ctx, userID); err != nil {
			s.logger.Warn("session cache erase failed", "user_id", userID, "error", err)
		}
	}
	if err := s.users.EraseUser(ctx, userID); err != nil {
		return fmt.Errorf("service: erase user %q: %w", userID, err)
	}

	if s.metrics != nil {
		s.metrics.UsersErased.Add(ctx, 1)
	}
	s.logger.Info("user memory erased", "user_id", userID)
	return nil
}

// speakerLabel maps a turn role to the display label used in mirrored
// semantic fragments.
func (s *Service) speakerLabel(role string) string {
	if role == memory.RoleAssistant {
		return s.botName
	}
	return "User"
}
