// Package fendesk assembles an evaluation session from the user's settings.
package fendesk

import (
	"github.com/rs/zerolog/log"

	"github.com/fendesk/fendesk/config"
	"github.com/fendesk/fendesk/history"
	"github.com/fendesk/fendesk/memo"
	"github.com/fendesk/fendesk/rates"
	"github.com/fendesk/fendesk/session"
)

// Open builds a session: its history store, preview memo, and exchange rate
// cache all follow s. Rates are not loaded; call RefreshRates or LoadRates.
func Open(s config.Settings) (*session.Session, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	h, err := OpenHistory(s)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithHistory(h),
		session.WithTimeouts(s.Evaluation.CommitTimeoutMs, s.Evaluation.PreviewTimeoutMs),
	}
	if s.Preview.MemoSize > 0 {
		opts = append(opts, session.WithMemo(memo.New(s.Preview.MemoSize)))
	}
	if !s.Rates.Disabled {
		opts = append(opts, session.WithRateSource(RateCache(s)))
	}
	sess := session.New(opts...)
	log.Debug().Str("session", sess.ID()).Msg("Opened session")
	return sess, nil
}

// OpenHistory opens the history store named by the settings.
func OpenHistory(s config.Settings) (history.Store, error) {
	path, err := s.HistoryPath()
	if err != nil {
		return nil, err
	}
	if path == config.MemoryHistory {
		return history.NewMemory(s.History.Limit), nil
	}
	h, err := history.NewSQLite(path, s.History.Limit)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("Opened history")
	return h, nil
}

// RateCache builds the exchange rate cache described by the settings.
func RateCache(s config.Settings) *rates.Cache {
	fetcher := rates.NewHTTPFetcher(
		rates.WithURL(s.Rates.URL),
		rates.WithTimeout(s.RequestTimeout()),
	)
	return rates.NewCache(
		rates.WithDir(s.Rates.CacheDir),
		rates.WithWriteBack(s.Rates.WriteBack),
		rates.WithFetcher(fetcher),
	)
}
