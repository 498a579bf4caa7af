// Package ledger is the consistency engine over the user document: record
// mutations, the budget they feed and the statistics derived from them.
//
// Every mutation runs as one load-mutate-save cycle on the document store and
// is durable before the call returns.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/document"
	"ledger/internal/log"
	"ledger/internal/repository"
)

type (
	// CategorySource lists the known categories. When set on the service,
	// records must use a listed category.
	CategorySource interface {
		List(ctx context.Context) (core.Taxonomy, error)
	}

	// Publisher receives every applied mutation. Failures are logged and
	// never fail the mutation.
	Publisher interface {
		PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
	}

	Option func(*Service)
)

// Service hands out per-user record stores and budget trackers sharing one
// repository, statistics cache and event publisher.
type Service struct {
	users      *repository.Users
	mode       BudgetMode
	categories CategorySource
	publisher  Publisher
	logger     *log.Logger

	// gen counts invalidations. statsMu orders a cache fill against
	// Invalidate so a summary read before a mutation is never stored after it.
	stats   *cache.LRUCache[core.Summary]
	statsMu sync.Mutex
	group   singleflight.Group
	gen     atomic.Uint64

	newID func() string
	now   func() time.Time
}

func WithBudgetMode(mode BudgetMode) Option {
	return func(s *Service) { s.mode = mode }
}

// WithCategoryCheck rejects records whose category src does not list.
func WithCategoryCheck(src CategorySource) Option {
	return func(s *Service) { s.categories = src }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithStatsCache caches summaries per user for ttl.
func WithStatsCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 && ttl > 0 {
			s.stats = cache.NewLRUCache[core.Summary](size, ttl)
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func New(users *repository.Users, opts ...Option) *Service {
	s := &Service{
		users:  users,
		mode:   Derived,
		logger: log.Default(log.ComponentLedger),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the budget mode the service applies.
func (s *Service) Mode() BudgetMode {
	return s.mode
}

// StatsCache exposes the summary cache for periodic expiry, nil when
// caching is disabled.
func (s *Service) StatsCache() *cache.LRUCache[core.Summary] {
	return s.stats
}

// Records returns the record store of username.
func (s *Service) Records(username string) *RecordStore {
	return &RecordStore{svc: s, username: username}
}

// Budget returns the budget tracker of username.
func (s *Service) Budget(username string) *BudgetTracker {
	return &BudgetTracker{svc: s, username: username}
}

// Invalidate drops the cached summary of username, or of every user when
// username is empty.
func (s *Service) Invalidate(username string) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.gen.Add(1)
	if s.stats == nil {
		return
	}
	if username == "" {
		s.stats.Clear()
		return
	}
	s.stats.Delete(username)
}

// WatchStore invalidates the statistics cache whenever another process
// rewrites the user document. It blocks until ctx is done.
func (s *Service) WatchStore(ctx context.Context, w document.Watcher) error {
	return w.Watch(ctx, func(key string) {
		if key != document.UsersKey {
			return
		}
		s.logger.Debug("User document changed externally", log.FieldKey, key)
		s.Invalidate("")
	})
}

func (s *Service) account(ctx context.Context, username string) (*core.Account, error) {
	return s.users.Get(ctx, username)
}

// mutate applies fn to the account of username inside one document update,
// then brings the stored budget in line with the mode and publishes the
// resulting event.
func (s *Service) mutate(ctx context.Context, username string, fn func(*core.Account) (core.LedgerEvent, error)) (core.LedgerEvent, error) {
	var ev core.LedgerEvent
	err := s.users.UpdateAccount(ctx, username, func(acct *core.Account) error {
		e, err := fn(acct)
		if err != nil {
			return err
		}
		s.mode.apply(acct, e)
		e.Username = username
		e.Budget = acct.Budget
		e.Remaining = acct.RemainingBudget
		e.At = s.now()
		ev = e
		return nil
	})
	if err != nil {
		return core.LedgerEvent{}, err
	}

	s.Invalidate(username)
	s.publish(ctx, ev)
	return ev, nil
}

func (s *Service) publish(ctx context.Context, ev core.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.LogFields(ctx, slog.LevelError, "Failed to publish ledger event", log.NewFields().
			WithOperation(log.OpPublish).
			WithUser(ev.Username).
			WithError(err))
	}
}

// categoryCheck returns the validation applied to records about to be
// stored. With strict categories a record's category must be listed under
// the kind its amount implies. The taxonomy is read before the user document
// is locked.
func (s *Service) categoryCheck(ctx context.Context) (func(core.Record) error, error) {
	if s.categories == nil {
		return func(core.Record) error { return nil }, nil
	}
	tax, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return func(rec core.Record) error {
		kind := rec.Kind()
		if tax.Contains(kind, rec.Category) {
			return nil
		}
		if other, ok := tax.KindOf(rec.Category); ok {
			return fmt.Errorf("%w: %q is listed under %s, not %s", core.ErrUnknownCategory, rec.Category, other, kind)
		}
		return fmt.Errorf("%w: %q", core.ErrUnknownCategory, rec.Category)
	}, nil
}
