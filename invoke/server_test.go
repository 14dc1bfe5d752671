package invoke

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fendesk/fendesk/config"
	"github.com/fendesk/fendesk/history"
	"github.com/fendesk/fendesk/rates"
	"github.com/fendesk/fendesk/session"
)

type stubSource struct {
	calls atomic.Int32
}

func (s *stubSource) GetSnapshot(ctx context.Context) (*rates.Snapshot, bool) {
	s.calls.Add(1)
	return &rates.Snapshot{Date: "2024-01-02", Base: "USD", Rates: map[string]float64{"EUR": 0.9}}, true
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *session.Session, *stubSource) {
	t.Helper()
	src := &stubSource{}
	sess := session.New(session.WithRateSource(src), session.WithHistory(history.NewMemory(0)))
	t.Cleanup(func() { sess.Close() })
	srv := httptest.NewServer(NewServer(sess, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, sess, src
}

func post(t *testing.T, url, payload string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestPrompt(t *testing.T) {
	srv, sess, _ := newTestServer(t)

	resp, body := post(t, srv.URL+"/invoke/fend_prompt", `{"value": "x = 1 + 2", "timeout": 500}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	var out string
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "3", out)

	v, ok := sess.Lookup("x")
	require.True(t, ok)
	require.Equal(t, "3", v)
}

func TestPromptError(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := post(t, srv.URL+"/invoke/fend_prompt", `{"value": "bogus$$"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	require.NotEmpty(t, e.Error)

	resp, _ = post(t, srv.URL+"/invoke/fend_prompt", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreviewDoesNotCommit(t *testing.T) {
	srv, sess, _ := newTestServer(t)

	resp, body := post(t, srv.URL+"/invoke/fend_preview_prompt", `{"value": "y = 7", "timeout": 100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `"7"`, string(body))
	_, ok := sess.Lookup("y")
	require.False(t, ok)

	resp, body = post(t, srv.URL+"/invoke/fend_preview_prompt", `{"value": "while True:\n    pass", "timeout": 10}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, string(body), "interrupted")
}

func TestSetupExchanges(t *testing.T) {
	srv, sess, src := newTestServer(t)

	resp, _ := post(t, srv.URL+"/invoke/setup_exchanges", ``)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		return sess.Rates() != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), src.calls.Load())

	resp, body := post(t, srv.URL+"/invoke/fend_prompt", `{"value": "1 USD to EUR"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `"0.9 EUR"`, string(body))
}

func TestSetSetting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	srv, sess, _ := newTestServer(t, WithSettings(config.Default(), path))

	resp, _ := post(t, srv.URL+"/invoke/set_setting", `{"id": "evaluation.commit_timeout_ms", "value": 900}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, int64(900), sess.CommitTimeout())

	resp, _ = post(t, srv.URL+"/invoke/set_setting", `{"id": "rates.write_back", "value": false}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	saved, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(900), saved.Evaluation.CommitTimeoutMs)
	require.False(t, saved.Rates.WriteBack)

	resp, _ = post(t, srv.URL+"/invoke/set_setting", `{"id": "nope", "value": "1"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/invoke/set_setting", `{"id": "evaluation.preview_timeout_ms", "value": -1}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, int64(100), sess.PreviewTimeout())
}

func TestHistory(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/invoke/history")
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Empty(t, entries)

	post(t, srv.URL+"/invoke/fend_prompt", `{"value": "a = 1"}`)
	post(t, srv.URL+"/invoke/fend_prompt", `{"value": "a + 1"}`)

	resp, err = http.Get(srv.URL + "/invoke/history?limit=1")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Len(t, entries, 1)
	require.Equal(t, "a + 1", entries[0].Input)
	require.Equal(t, "2", entries[0].Output)

	resp, err = http.Get(srv.URL + "/invoke/history?limit=x")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWrongMethod(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/invoke/fend_prompt")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
