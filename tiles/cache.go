package tiles

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
)

// SessionService is the slice of the tile service the cache needs.
type SessionService interface {
	CreateSession(ctx context.Context) (*SessionRecord, error)
	FetchTile(ctx context.Context, sessionID string, z, x, y int) ([]byte, string, error)
}

// pending is an in-flight session creation. record and err are written
// exactly once, before done is closed.
type pending struct {
	done   chan struct{}
	record *SessionRecord
	err    error
}

// Cache memoizes the tile-service session and guarantees single-flight
// creation: the slot is claimed under the mutex before the creation call is
// dispatched, so callers arriving while a creation is outstanding attach to
// the same result instead of issuing their own.
//
// The in-memory slot is authoritative for the process lifetime; the Store
// only pre-populates it on cold start and absorbs each new record.
type Cache struct {
	service       SessionService
	store         Store
	createTimeout time.Duration
	nowFunc       func() time.Time
	log           zerolog.Logger

	mu       sync.Mutex
	ready    *SessionRecord
	inflight *pending
	loaded   bool
}

// CacheOption defines a function type to modify the Cache instance.
type CacheOption func(*Cache)

// WithCacheNowFunc sets the now time function (primarily for testing)
func WithCacheNowFunc(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// WithCreateTimeout bounds the session creation call. Timeout is treated as
// call failure.
func WithCreateTimeout(timeout time.Duration) CacheOption {
	return func(c *Cache) {
		c.createTimeout = timeout
	}
}

// WithCacheLogger sets the structured logger.
func WithCacheLogger(log zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

// NewCache creates a session cache over the given service and store.
func NewCache(service SessionService, store Store, options ...CacheOption) (*Cache, error) {
	if service == nil {
		return nil, errors.New("[tiles.NewCache] service is required")
	}
	if store == nil {
		return nil, errors.New("[tiles.NewCache] store is required")
	}

	c := &Cache{
		service:       service,
		store:         store,
		createTimeout: 10 * time.Second,
		nowFunc:       time.Now,
		log:           zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// ResolveSession returns a valid session record, creating one if the cached
// record is absent or expired. Concurrent callers share a single creation
// call; a failed creation is propagated to every waiter and clears the slot
// so the next caller may retry.
func (c *Cache) ResolveSession(ctx context.Context) (*SessionRecord, error) {
	c.mu.Lock()

	if !c.loaded {
		c.loadLocked()
	}

	if c.ready.Valid(c.nowFunc()) {
		record := *c.ready
		c.mu.Unlock()
		cacheHits.Inc()
		return &record, nil
	}

	if c.inflight != nil {
		p := c.inflight
		c.mu.Unlock()
		coalescedWaits.Inc()
		return c.wait(ctx, p)
	}

	// Claim the slot before dispatching the creation call.
	p := &pending{done: make(chan struct{})}
	c.inflight = p
	c.mu.Unlock()

	cacheMisses.Inc()

	record, err := c.create(ctx)

	c.mu.Lock()
	if err == nil {
		c.ready = record
	}
	c.inflight = nil
	c.mu.Unlock()

	p.record = record
	p.err = err
	close(p.done)

	if err != nil {
		return nil, err
	}

	if storeErr := c.store.Set(StoreKey, record); storeErr != nil {
		c.log.Warn().Err(storeErr).Msg("failed to persist tile session")
	}

	result := *record
	return &result, nil
}

// FetchTile resolves the session and fetches the requested tile with it.
// A failed fetch is surfaced to the caller without invalidating the session.
func (c *Cache) FetchTile(ctx context.Context, z, x, y int) ([]byte, string, error) {
	record, err := c.ResolveSession(ctx)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := c.service.FetchTile(ctx, record.SessionID, z, x, y)
	if err != nil {
		tileFetchesTotal.WithLabelValues("failure").Inc()
		return nil, "", err
	}

	tileFetchesTotal.WithLabelValues("success").Inc()
	return data, contentType, nil
}

func (c *Cache) wait(ctx context.Context, p *pending) (*SessionRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	if p.err != nil {
		return nil, p.err
	}
	record := *p.record
	return &record, nil
}

func (c *Cache) create(ctx context.Context) (*SessionRecord, error) {
	createCtx, cancel := context.WithTimeout(ctx, c.createTimeout)
	defer cancel()

	record, err := c.service.CreateSession(createCtx)
	if err != nil {
		creationsTotal.WithLabelValues("failure").Inc()
		return nil, errors.Wrapf(gwerrors.ErrSessionCreation, "%v", err)
	}

	creationsTotal.WithLabelValues("success").Inc()
	return record, nil
}

// loadLocked pre-populates the slot from durable storage. Called once, with
// the mutex held. Staleness is decided afterwards by the normal validity
// check, not here.
func (c *Cache) loadLocked() {
	c.loaded = true

	record, ok, err := c.store.Get(StoreKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read persisted tile session")
		return
	}
	if ok {
		c.ready = record
	}
}
