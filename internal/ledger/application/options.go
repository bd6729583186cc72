// Package application implements the register core managers over a
// domain.Repository and a domain.EventPublisher.
package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/register/internal/cachemanager"
	"github.com/zjrosen/register/internal/flags"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/metrics"
)

// DefaultExistenceTTL is how long a positive register existence lookup is cached.
const DefaultExistenceTTL = 5 * time.Minute

// Option configures a manager. Every manager accepts the same options and
// ignores the ones it has no use for.
type Option func(*settings)

type settings struct {
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	now          func() time.Time
	newID        func() string
	flags        *flags.Registry
	existence    cachemanager.CacheManager[string, bool]
	existenceTTL time.Duration
	locks        *registerLocks
}

// WithMetrics records operation counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracer wraps every operation in a span from tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) { s.tracer = tracer }
}

// WithClock overrides the time source. Returned times are stored as given.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides register id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithFlags sets the feature flag registry.
func WithFlags(r *flags.Registry) Option {
	return func(s *settings) {
		if r != nil {
			s.flags = r
		}
	}
}

// WithExistenceCache shares a register existence cache between managers.
// Only positive lookups are cached; deletes through RegisterManager invalidate.
func WithExistenceCache(cache cachemanager.CacheManager[string, bool], ttl time.Duration) Option {
	return func(s *settings) {
		s.existence = cache
		if ttl > 0 {
			s.existenceTTL = ttl
		}
	}
}

// WithSharedLocks makes several DocketManagers serialize on the same
// per-register locks. Managers built by the same composition root should share one.
func WithSharedLocks(l *RegisterLocks) Option {
	return func(s *settings) {
		if l != nil {
			s.locks = l.locks
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		now:          func() time.Time { return time.Now().UTC() },
		newID:        newRegisterID,
		flags:        flags.New(nil),
		existenceTTL: DefaultExistenceTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = newRegisterLocks()
	}
	return s
}

// newRegisterID returns a random uuid rendered as 32 hex characters.
func newRegisterID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// existenceChecker resolves whether a register exists, through the shared
// cache when the register-cache flag is on. Only positive answers are cached
// and hits extend their ttl.
type existenceChecker struct {
	cache *cachemanager.ReadThrough[string, bool]
}

func newExistenceChecker(repo domain.RegisterRepository, s *settings) *existenceChecker {
	load := func(ctx context.Context, id string) (bool, error) {
		_, err := repo.GetRegister(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
	rt := cachemanager.NewReadThrough(s.existence, load, s.existenceTTL).
		Bypass(!s.flags.Enabled(flags.FlagRegisterCache)).
		Sliding().
		CacheOnly(func(exists bool) bool { return exists })
	return &existenceChecker{cache: rt}
}

func (c *existenceChecker) exists(ctx context.Context, id string) (bool, error) {
	return c.cache.Get(ctx, id)
}

func (c *existenceChecker) remember(ctx context.Context, id string) {
	c.cache.Set(ctx, id, true)
}

func (c *existenceChecker) forget(ctx context.Context, id string) {
	if err := c.cache.Invalidate(ctx, id); err != nil {
		log.Warn(log.CatCache, "failed to invalidate register existence", "register", id, "error", err)
	}
}

// publishAll delivers events in order. Failures are logged and counted but
// never returned: the write they describe has already committed.
func publishAll(ctx context.Context, publisher domain.EventPublisher, m *metrics.Metrics, events ...domain.Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		err := publisher.Publish(ctx, event)
		m.EventPublished(string(event.Kind()), err)
		if err != nil {
			log.Warn(log.CatEvents, "event publish failed",
				"kind", event.Kind(), "register", event.Register(), "error", err)
		}
	}
}

// recordValidation counts validation failures for operation and passes err through.
func recordValidation(m *metrics.Metrics, operation string, err error) error {
	if errors.Is(err, domain.ErrValidation) {
		m.ValidationError(operation)
	}
	return err
}
