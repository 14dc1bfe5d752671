package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fendesk/fendesk/engine"
	"github.com/fendesk/fendesk/history"
	"github.com/fendesk/fendesk/memo"
	"github.com/fendesk/fendesk/rates"
)

const (
	DefaultCommitTimeoutMs  = 500
	DefaultPreviewTimeoutMs = 100
)

// RateSource provides today's exchange rate snapshot. rates.Cache is the
// production implementation.
type RateSource interface {
	GetSnapshot(ctx context.Context) (*rates.Snapshot, bool)
}

// Session is one user's evaluation state plus the services around it.
type Session struct {
	id      string
	store   *Store
	rates   RateSource
	memo    *memo.Cache
	history history.Store
	now     func() time.Time

	commitTimeout  atomic.Int64
	previewTimeout atomic.Int64

	installed  atomic.Pointer[rates.Snapshot]
	refreshing sync.WaitGroup
}

// Option configures New.
type Option func(*Session)

// WithStore uses an existing context store instead of creating one.
func WithStore(st *Store) Option {
	return func(s *Session) { s.store = st }
}

func WithRateSource(src RateSource) Option {
	return func(s *Session) { s.rates = src }
}

// WithMemo remembers preview outcomes in c.
func WithMemo(c *memo.Cache) Option {
	return func(s *Session) { s.memo = c }
}

func WithHistory(h history.Store) Option {
	return func(s *Session) { s.history = h }
}

// WithTimeouts sets the default budgets reported by CommitTimeout and
// PreviewTimeout.
func WithTimeouts(commitMs, previewMs int64) Option {
	return func(s *Session) { s.SetTimeouts(commitMs, previewMs) }
}

// WithNow sets the clock used for history timestamps and day changes.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a session. Without a rate source, currency conversion fails
// with an error until a resolver is installed by other means.
func New(opts ...Option) *Session {
	s := &Session{
		id:  uuid.NewString(),
		now: time.Now,
	}
	s.SetTimeouts(DefaultCommitTimeoutMs, DefaultPreviewTimeoutMs)
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = NewStore(WithClock(s.now))
	}
	if s.history == nil {
		s.history = history.NewMemory(0)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Commit evaluates expr against the live context and keeps its effects.
// Non-blank input is appended to the history whether or not it succeeds.
func (s *Session) Commit(expr string, timeoutMs int64) (string, error) {
	var out string
	err := s.store.Commit(func(live *engine.Context) error {
		var err error
		out, err = Evaluate(expr, timeoutMs, live)
		return err
	})

	logger := log.With().Str("session", s.id).Int64("timeout_ms", timeoutMs).Logger()
	if err != nil {
		logger.Debug().Err(err).Str("input", expr).Msg("Commit failed")
	} else {
		logger.Debug().Str("input", expr).Str("output", out).Msg("Committed")
	}

	if strings.TrimSpace(expr) != "" {
		e := history.Entry{
			Session: s.id,
			Input:   expr,
			Output:  out,
			At:      s.now(),
		}
		if err != nil {
			e.Output = err.Error()
			e.Failed = true
		}
		if herr := s.history.Append(e); herr != nil {
			logger.Warn().Err(herr).Msg("Failed to record history")
		}
	}
	return out, err
}

// Preview evaluates expr against a copy of the latest committed state. It
// never changes the live context and never waits for a running commit.
func (s *Session) Preview(expr string, timeoutMs int64) (string, error) {
	latest := s.store.latest()
	if s.memo != nil {
		if o, ok := s.memo.Lookup(latest.gen, expr); ok {
			return o.Result()
		}
	}

	out, repeatable, err := evaluate(expr, timeoutMs, latest.ctx.Clone())
	// interrupted outcomes are never stored, so cached errors need no sentinel
	if s.memo != nil && repeatable && !errors.Is(err, engine.ErrInterrupted) {
		s.memo.Remember(latest.gen, expr, memo.OutcomeOf(out, err))
	}
	return out, err
}

// RefreshRates loads today's rates in the background and installs them
// into the live context when they arrive.
func (s *Session) RefreshRates(ctx context.Context) {
	s.refreshing.Add(1)
	go func() {
		defer s.refreshing.Done()
		s.LoadRates(ctx)
	}()
}

// LoadRates is the synchronous form of RefreshRates. It reports whether a
// snapshot was installed; failures are logged and leave the resolver as is.
func (s *Session) LoadRates(ctx context.Context) bool {
	if s.rates == nil {
		return false
	}
	snap, ok := s.rates.GetSnapshot(ctx)
	if !ok {
		log.Warn().Str("session", s.id).Msg("Failed to get exchange rates")
		return false
	}
	s.store.InstallRateResolver(snap.Rate)
	s.installed.Store(snap)
	log.Info().Str("session", s.id).Str("date", snap.Date).Uint64("gen", s.store.Generation()).Msg("Installed exchange rates")
	return true
}

// KeepRatesFresh checks every interval whether the local day has changed
// since the installed snapshot was dated, and reloads the rates if so. It
// returns when ctx is done.
func (s *Session) KeepRatesFresh(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if snap := s.installed.Load(); snap != nil && snap.FreshOn(s.now()) {
				continue
			}
			s.refreshing.Add(1)
			s.LoadRates(ctx)
			s.refreshing.Done()
		}
	}
}

// Rates returns the installed snapshot, or nil.
func (s *Session) Rates() *rates.Snapshot {
	return s.installed.Load()
}

// History returns at most limit committed entries, oldest first.
func (s *Session) History(limit int) ([]history.Entry, error) {
	return s.history.Recent(limit)
}

// ClearHistory forgets all committed entries.
func (s *Session) ClearHistory() error {
	return s.history.Clear()
}

// Names lists the committed bindings.
func (s *Session) Names() []string {
	return s.store.Names()
}

// Lookup returns the display form of a committed binding.
func (s *Session) Lookup(name string) (string, bool) {
	v, ok := s.store.latest().ctx.Lookup(name)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Generation counts writes to the live context.
func (s *Session) Generation() uint64 {
	return s.store.Generation()
}

func (s *Session) CommitTimeout() int64 {
	return s.commitTimeout.Load()
}

func (s *Session) PreviewTimeout() int64 {
	return s.previewTimeout.Load()
}

// SetTimeouts changes the default budgets.
func (s *Session) SetTimeouts(commitMs, previewMs int64) {
	s.commitTimeout.Store(commitMs)
	s.previewTimeout.Store(previewMs)
}

// MemoStats reports preview memo usage. ok is false when no memo is in use.
func (s *Session) MemoStats() (memo.Stats, bool) {
	if s.memo == nil {
		return memo.Stats{}, false
	}
	return s.memo.Stats(), true
}

// Close waits for background refreshes and closes the history store.
func (s *Session) Close() error {
	s.refreshing.Wait()
	return s.history.Close()
}
