// Package invoke serves a session's commands over HTTP, one route per
// command, for shells that drive the evaluator out of process.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fendesk/fendesk/config"
	"github.com/fendesk/fendesk/history"
	"github.com/fendesk/fendesk/session"
)

// Server exposes a session. Evaluation requests carry
// {"value": string, "timeout": int}; a missing timeout uses the session's
// default for that kind of evaluation.
type Server struct {
	sess *session.Session
	ctx  context.Context

	mu           sync.Mutex
	settings     config.Settings
	settingsPath string
}

type Option func(*Server)

// WithSettings sets the settings that set_setting edits. When path is not
// empty, every change is saved there.
func WithSettings(s config.Settings, path string) Option {
	return func(srv *Server) {
		srv.settings = s
		srv.settingsPath = path
	}
}

// WithContext bounds background work started by requests, such as rate refreshes.
func WithContext(ctx context.Context) Option {
	return func(srv *Server) { srv.ctx = ctx }
}

func NewServer(sess *session.Session, opts ...Option) *Server {
	srv := &Server{
		sess:     sess,
		ctx:      context.Background(),
		settings: config.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke/fend_prompt", s.handlePrompt)
	mux.HandleFunc("POST /invoke/fend_preview_prompt", s.handlePreview)
	mux.HandleFunc("POST /invoke/setup_exchanges", s.handleSetupExchanges)
	mux.HandleFunc("POST /invoke/set_setting", s.handleSetSetting)
	mux.HandleFunc("GET /invoke/history", s.handleHistory)
	return withRequestID(mux)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("request", id).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Handled invoke")
	})
}

type promptRequest struct {
	Value   string `json:"value"`
	Timeout *int64 `json:"timeout"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Couldn't write invoke response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodePrompt(r *http.Request, fallback int64) (string, int64, error) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", 0, fmt.Errorf("malformed request: %w", err)
	}
	timeout := fallback
	if req.Timeout != nil {
		timeout = *req.Timeout
	}
	return req.Value, timeout, nil
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	expr, timeout, err := decodePrompt(r, s.sess.CommitTimeout())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.sess.Commit(expr, timeout)
	s.respond(w, out, err)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	expr, timeout, err := decodePrompt(r, s.sess.PreviewTimeout())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.sess.Preview(expr, timeout)
	s.respond(w, out, err)
}

func (s *Server) respond(w http.ResponseWriter, out string, err error) {
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetupExchanges(w http.ResponseWriter, r *http.Request) {
	s.sess.RefreshRates(s.ctx)
	w.WriteHeader(http.StatusAccepted)
}

type settingRequest struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

func settingText(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported setting value %v", v)
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return
	}
	value, err := settingText(req.Value)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings
	if err := next.Set(req.ID, value); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, config.ErrUnknownSetting) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if s.settingsPath != "" {
		if err := config.Save(s.settingsPath, next); err != nil {
			log.Warn().Err(err).Str("path", s.settingsPath).Msg("Failed to save settings")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.settings = next
	s.sess.SetTimeouts(next.Evaluation.CommitTimeoutMs, next.Evaluation.PreviewTimeoutMs)
	log.Info().Str("id", req.ID).Str("value", value).Msg("Changed setting")
	w.WriteHeader(http.StatusNoContent)
}

// Settings returns the settings as edited so far.
func (s *Server) Settings() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad limit: %w", err))
			return
		}
		limit = n
	}
	entries, err := s.sess.History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
