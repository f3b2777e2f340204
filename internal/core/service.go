package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/internal/infra/persistence/memory"
	"github.com/almecha/GlucoseIoT/internal/schema"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// ErrUnsupportedEntity is returned by the generic resource entry points for
// entity types that do not support the requested operation.
var ErrUnsupportedEntity = errors.New("unsupported resource type")

// Service implements the catalog resource semantics on top of a
// transactional store. Every mutation is a single store transaction, so
// cascades either apply completely or not at all.
type Service struct {
	store     domain.PersistentStore
	validator *schema.Validator
	hasher    PasswordHasher
	logger    *zap.Logger
	metrics   MetricsRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder notified after every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithValidator overrides the payload validator.
func WithValidator(v *schema.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithPasswordHasher overrides the password hasher.
func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		hasher:  NewPasswordHasher(0),
		logger:  zap.NewNop(),
		metrics: noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = schema.MustNew()
	}
	s.logger = s.logger.Named("catalog")
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store that
// uses the given rules engine and never persists.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// run executes fn as one store transaction and reports the outcome.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Transaction) error) error {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", zap.String("operation", op), zap.String("rule", v.Rule), zap.String("message", v.Message))
		}
	}
	s.finish(ctx, op, start, err)
	return err
}

// view executes fn against a read-only snapshot and reports the outcome.
func (s *Service) view(ctx context.Context, op string, fn func(view domain.TransactionView) error) error {
	start := time.Now()
	err := s.store.View(ctx, fn)
	s.finish(ctx, op, start, err)
	return err
}

func (s *Service) finish(ctx context.Context, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err == nil {
		s.logger.Debug("operation completed", zap.String("operation", op), zap.Duration("duration", elapsed))
		return
	}
	var perr domain.PersistenceError
	if errors.As(err, &perr) {
		s.logger.Error("operation not persisted", zap.String("operation", op), zap.Error(err))
		return
	}
	s.logger.Info("operation rejected", zap.String("operation", op), zap.Error(err))
}

// reject reports an operation that failed before reaching the store.
func (s *Service) reject(ctx context.Context, op string, err error) {
	s.finish(ctx, op, time.Now(), err)
}
