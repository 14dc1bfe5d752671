package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// CacheFile is the cache location relative to the per-user cache directory.
var CacheFile = filepath.Join("fendesk", "exchanges.txt")

// Cache answers with today's snapshot from the cache file, or from the Fetcher.
type Cache struct {
	// Dir is the per-user cache directory. Empty means os.UserCacheDir().
	Dir     string
	Fetcher Fetcher
	// WriteBack persists freshly fetched snapshots to the cache file.
	WriteBack bool
	Now       func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithDir(dir string) CacheOption {
	return func(c *Cache) { c.Dir = dir }
}

func WithFetcher(f Fetcher) CacheOption {
	return func(c *Cache) { c.Fetcher = f }
}

func WithWriteBack(on bool) CacheOption {
	return func(c *Cache) { c.WriteBack = on }
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.Now = now }
}

// NewCache creates a cache backed by an HTTPFetcher for DefaultURL unless overridden.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		WriteBack: true,
		Now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Fetcher == nil {
		c.Fetcher = NewHTTPFetcher()
	}
	return c
}

// Path is the cache file location.
func (c *Cache) Path() (string, error) {
	dir := c.Dir
	if dir == "" {
		d, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return filepath.Join(dir, CacheFile), nil
}

// GetSnapshot returns today's snapshot. Every failure along the way is logged
// and degrades to (nil, false).
func (c *Cache) GetSnapshot(ctx context.Context) (*Snapshot, bool) {
	s, err := c.ReadCached()
	if err == nil {
		log.Debug().Str("date", s.Date).Msg("Using cached exchange rates")
		return s, true
	}
	log.Debug().Err(err).Msg("No usable cached exchange rates")

	if c.Fetcher == nil {
		return nil, false
	}
	s, err = c.Fetcher.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch exchange rates")
		return nil, false
	}
	log.Info().Str("date", s.Date).Int("currencies", len(s.Rates)).Msg("Fetched exchange rates")

	if c.WriteBack {
		if err := c.Persist(s); err != nil {
			log.Warn().Err(err).Msg("Failed to write exchange rate cache")
		}
	}
	return s, true
}

var ErrStale = errors.New("cached exchange rates are not from today")

// ReadCached reads the cache file and accepts it only if it is dated today.
func (c *Cache) ReadCached() (*Snapshot, error) {
	path, err := c.Path()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !s.FreshOn(c.now()) {
		return nil, fmt.Errorf("%w: dated %s", ErrStale, s.Date)
	}
	return &s, nil
}

// Persist writes s to the cache file through a temporary file and a rename.
func (c *Cache) Persist(s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	path, err := c.Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".exchanges-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Debug().Str("path", path).Str("date", s.Date).Msg("Wrote exchange rate cache")
	return nil
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
