package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls atomic.Int32
	snap  *Snapshot
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	f.calls.Add(1)
	return f.snap, f.err
}

func writeCacheFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, CacheFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.Local) }
}

func TestStaleCacheTriggersFetch(t *testing.T) {
	dir := t.TempDir()
	writeCacheFile(t, dir, `{"date":"2024-01-01","base":"USD","rates":{"EUR":0.9}}`)
	fetcher := &countingFetcher{err: errors.New("offline")}
	c := NewCache(WithDir(dir), WithFetcher(fetcher), WithClock(fixedClock(2024, 1, 2)))

	_, err := c.ReadCached()
	require.ErrorIs(t, err, ErrStale)

	s, ok := c.GetSnapshot(context.Background())
	require.False(t, ok)
	require.Nil(t, s)
	require.Equal(t, int32(1), fetcher.calls.Load())
}

func TestFreshCacheSkipsFetch(t *testing.T) {
	dir := t.TempDir()
	writeCacheFile(t, dir, `{"date":"2024-01-02","base":"USD","rates":{"EUR":0.9}}`)
	fetcher := &countingFetcher{err: errors.New("should not be called")}
	c := NewCache(WithDir(dir), WithFetcher(fetcher), WithClock(fixedClock(2024, 1, 2)))

	s, ok := c.GetSnapshot(context.Background())
	require.True(t, ok)
	require.Equal(t, 0.9, s.Rates["EUR"])
	require.Equal(t, int32(0), fetcher.calls.Load())
}

func TestMalformedCacheFallsBackToFetch(t *testing.T) {
	dir := t.TempDir()
	writeCacheFile(t, dir, `{"date": 12`)
	fetched := &Snapshot{Date: "2024-01-02", Base: "USD", Rates: map[string]float64{"EUR": 0.91}}
	fetcher := &countingFetcher{snap: fetched}
	c := NewCache(WithDir(dir), WithFetcher(fetcher), WithClock(fixedClock(2024, 1, 2)), WithWriteBack(false))

	s, ok := c.GetSnapshot(context.Background())
	require.True(t, ok)
	require.Equal(t, fetched, s)

	// write-back disabled: the broken file is still there
	_, err := c.ReadCached()
	require.ErrorIs(t, err, ErrMalformed)
}

func TestWriteBackMakesNextReadFresh(t *testing.T) {
	dir := t.TempDir()
	fetched := &Snapshot{Date: "2024-01-02", Base: "USD", Rates: map[string]float64{"EUR": 0.91}}
	fetcher := &countingFetcher{snap: fetched}
	c := NewCache(WithDir(dir), WithFetcher(fetcher), WithClock(fixedClock(2024, 1, 2)))

	_, ok := c.GetSnapshot(context.Background())
	require.True(t, ok)
	_, ok = c.GetSnapshot(context.Background())
	require.True(t, ok)
	require.Equal(t, int32(1), fetcher.calls.Load(), "second call should be served from the cache file")

	// the next day the written file is stale again
	c.Now = fixedClock(2024, 1, 3)
	_, err := c.ReadCached()
	require.ErrorIs(t, err, ErrStale)
}

func TestMissingCacheFile(t *testing.T) {
	c := NewCache(WithDir(t.TempDir()), WithFetcher(&countingFetcher{err: errors.New("offline")}))
	_, err := c.ReadCached()
	require.ErrorIs(t, err, os.ErrNotExist)
	_, ok := c.GetSnapshot(context.Background())
	require.False(t, ok)
}

func TestPersistRejectsInvalid(t *testing.T) {
	c := NewCache(WithDir(t.TempDir()))
	err := c.Persist(&Snapshot{Date: "2024-01-01"})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHTTPFetcher(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		w.Write([]byte(`{"date":"2024-01-02","base":"USD","rates":{"EUR":0.9,"USD":1.0}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(WithURL(srv.URL+"/rates?base=USD"), WithTimeout(time.Second))
	s, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "application/json", gotAccept)
	require.Equal(t, "2024-01-02", s.Date)
	require.Equal(t, 0.9, s.Rates["EUR"])
}

func TestHTTPFetcherFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
		{"invalid snapshot", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"date":"2024-01-02","base":"USD","rates":{"EUR":-3}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewHTTPFetcher(WithURL(srv.URL)).Fetch(context.Background())
			require.Error(t, err)
		})
	}
}

func TestCacheWithHTTPFetcherOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewCache(WithDir(t.TempDir()), WithFetcher(NewHTTPFetcher(WithURL(url))))
	s, ok := c.GetSnapshot(context.Background())
	require.False(t, ok)
	require.Nil(t, s)
}
