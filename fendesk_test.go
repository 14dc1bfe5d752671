package fendesk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fendesk/fendesk/config"
	"github.com/fendesk/fendesk/rates"
)

func offlineSettings() config.Settings {
	s := config.Default()
	s.History.Path = config.MemoryHistory
	s.Rates.Disabled = true
	return s
}

func TestOpenOffline(t *testing.T) {
	sess, err := Open(offlineSettings())
	require.NoError(t, err)
	defer sess.Close()

	out, err := sess.Commit("1 + 2", sess.CommitTimeout())
	require.NoError(t, err)
	require.Equal(t, "3", out)
	require.False(t, sess.LoadRates(context.Background()))

	_, ok := sess.MemoStats()
	require.True(t, ok)
}

func TestOpenRejectsInvalid(t *testing.T) {
	s := offlineSettings()
	s.Evaluation.CommitTimeoutMs = 0
	_, err := Open(s)
	require.Error(t, err)
}

func TestHistoryPersistsAcrossSessions(t *testing.T) {
	s := offlineSettings()
	s.History.Path = filepath.Join(t.TempDir(), "history.db")

	sess, err := Open(s)
	require.NoError(t, err)
	_, err = sess.Commit("total = 3 * 4", sess.CommitTimeout())
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	sess, err = Open(s)
	require.NoError(t, err)
	defer sess.Close()
	entries, err := sess.History(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "total = 3 * 4", entries[0].Input)
	require.Equal(t, "12", entries[0].Output)
}

func TestRatesFromSettings(t *testing.T) {
	today := rates.Today(time.Now())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"date": %q, "base": "USD", "rates": {"EUR": 0.9, "USD": 1}}`, today)
	}))
	defer srv.Close()

	s := offlineSettings()
	s.Rates.Disabled = false
	s.Rates.URL = srv.URL
	s.Rates.CacheDir = t.TempDir()

	sess, err := Open(s)
	require.NoError(t, err)
	defer sess.Close()

	require.True(t, sess.LoadRates(context.Background()))
	out, err := sess.Commit("1 USD to EUR", sess.CommitTimeout())
	require.NoError(t, err)
	require.Equal(t, "0.9 EUR", out)

	_, err = os.Stat(filepath.Join(s.Rates.CacheDir, rates.CacheFile))
	require.NoError(t, err, "write-back creates the cache file")
}
