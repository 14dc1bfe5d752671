package session

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fendesk/fendesk/engine"
)

// Store owns the live evaluation context.
//
// Writers (commits and resolver installs) hold mu for their whole duration.
// After every write a clone of the live context is published; previews clone
// the published copy and never touch mu.
type Store struct {
	mu        sync.Mutex
	live      *engine.Context
	gen       uint64
	published atomic.Pointer[publishedContext]
}

type publishedContext struct {
	ctx *engine.Context
	gen uint64
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	now    func() time.Time
	random func() uint32
}

// WithClock sets the clock used to seed the context's current time.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// WithRandomSource sets the context's random source.
func WithRandomSource(fn func() uint32) StoreOption {
	return func(c *storeConfig) { c.random = fn }
}

// NewStore builds the live context seeded with the current local time and a
// random source. It is meant to be called once per process.
func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{
		now:    time.Now,
		random: rand.Uint32,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := engine.NewContext()
	now := cfg.now()
	_, offset := now.Zone()
	ctx.SetCurrentTime(now.UnixMilli(), int64(offset))
	ctx.SetRandomSource(cfg.random)

	s := &Store{live: ctx}
	s.publish()
	return s
}

// publish must be called with mu held, or before s is shared.
func (s *Store) publish() {
	s.published.Store(&publishedContext{ctx: s.live.Clone(), gen: s.gen})
}

// Commit runs fn against the live context. The generation moves on and the
// result is published whether or not fn fails, since a failed evaluation may
// still have bound names.
func (s *Store) Commit(fn func(live *engine.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.live)
	s.gen++
	s.publish()
	return err
}

// InstallRateResolver replaces the live context's currency resolver.
func (s *Store) InstallRateResolver(r engine.RateResolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.SetRateResolver(r)
	s.gen++
	s.publish()
}

// SnapshotForPreview returns a private copy of the latest published state and
// its generation. The copy can be mutated freely.
func (s *Store) SnapshotForPreview() (*engine.Context, uint64) {
	p := s.published.Load()
	return p.ctx.Clone(), p.gen
}

func (s *Store) latest() *publishedContext {
	return s.published.Load()
}

// Generation counts writes to the live context.
func (s *Store) Generation() uint64 {
	return s.published.Load().gen
}

// Names lists the live bindings as of the last write.
func (s *Store) Names() []string {
	return s.published.Load().ctx.Names()
}
