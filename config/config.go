// Package config loads and saves the user's settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fendesk/fendesk/rates"
)

// MemoryHistory as the history path keeps history in memory only.
const MemoryHistory = "memory"

var ErrUnknownSetting = errors.New("unknown setting")

type Settings struct {
	Evaluation Evaluation      `toml:"evaluation"`
	Rates      RatesSettings   `toml:"rates"`
	History    HistorySettings `toml:"history"`
	Preview    Preview         `toml:"preview"`
}

type Evaluation struct {
	CommitTimeoutMs  int64 `toml:"commit_timeout_ms"`
	PreviewTimeoutMs int64 `toml:"preview_timeout_ms"`
}

type RatesSettings struct {
	URL string `toml:"url"`
	// CacheDir replaces the per-user cache directory when set.
	CacheDir         string `toml:"cache_dir"`
	WriteBack        bool   `toml:"write_back"`
	RequestTimeoutMs int64  `toml:"request_timeout_ms"`
	Disabled         bool   `toml:"disabled"`
}

type HistorySettings struct {
	// Path of the history database. Empty means the per-user cache
	// directory; MemoryHistory keeps nothing on disk.
	Path  string `toml:"path"`
	Limit int    `toml:"limit"`
}

type Preview struct {
	MemoSize int `toml:"memo_size"`
}

func Default() Settings {
	return Settings{
		Evaluation: Evaluation{
			CommitTimeoutMs:  500,
			PreviewTimeoutMs: 100,
		},
		Rates: RatesSettings{
			URL:              rates.DefaultURL,
			WriteBack:        true,
			RequestTimeoutMs: 10000,
		},
		History: HistorySettings{
			Limit: 1000,
		},
		Preview: Preview{
			MemoSize: 256,
		},
	}
}

// DefaultPath is <userConfigDir>/fendesk/settings.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fendesk", "settings.toml"), nil
}

func parse(r io.Reader) (Settings, error) {
	s := Default()
	md, err := toml.NewDecoder(r).Decode(&s)
	if err != nil {
		return s, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return s, fmt.Errorf("%w: %s", ErrUnknownSetting, strings.Join(keys, ", "))
	}
	return s, s.Validate()
}

// Load reads the settings at path. A missing file yields the defaults; keys
// absent from the file keep their default values.
func Load(path string) (Settings, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()
	s, err := parse(f)
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, creating its directory.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s Settings) Validate() error {
	switch {
	case s.Evaluation.CommitTimeoutMs <= 0:
		return errors.New("evaluation.commit_timeout_ms must be positive")
	case s.Evaluation.PreviewTimeoutMs <= 0:
		return errors.New("evaluation.preview_timeout_ms must be positive")
	case s.Rates.RequestTimeoutMs <= 0:
		return errors.New("rates.request_timeout_ms must be positive")
	case !s.Rates.Disabled && s.Rates.URL == "":
		return errors.New("rates.url is empty")
	case s.History.Limit < 0:
		return errors.New("history.limit must not be negative")
	case s.Preview.MemoSize < 0:
		return errors.New("preview.memo_size must not be negative")
	}
	return nil
}

// IDs lists the settings Set accepts.
func IDs() []string {
	ids := make([]string, 0, len(setters))
	for id := range setters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var setters = map[string]func(s *Settings, v string) error{
	"evaluation.commit_timeout_ms":  intSetter(func(s *Settings) *int64 { return &s.Evaluation.CommitTimeoutMs }),
	"evaluation.preview_timeout_ms": intSetter(func(s *Settings) *int64 { return &s.Evaluation.PreviewTimeoutMs }),
	"rates.url":                     stringSetter(func(s *Settings) *string { return &s.Rates.URL }),
	"rates.cache_dir":               stringSetter(func(s *Settings) *string { return &s.Rates.CacheDir }),
	"rates.write_back":              boolSetter(func(s *Settings) *bool { return &s.Rates.WriteBack }),
	"rates.request_timeout_ms":      intSetter(func(s *Settings) *int64 { return &s.Rates.RequestTimeoutMs }),
	"rates.disabled":                boolSetter(func(s *Settings) *bool { return &s.Rates.Disabled }),
	"history.path":                  stringSetter(func(s *Settings) *string { return &s.History.Path }),
	"history.limit": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		s.History.Limit = n
		return nil
	},
	"preview.memo_size": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		s.Preview.MemoSize = n
		return nil
	},
}

func intSetter(field func(*Settings) *int64) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(s) = n
		return nil
	}
}

func boolSetter(field func(*Settings) *bool) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(s) = b
		return nil
	}
}

func stringSetter(field func(*Settings) *string) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		*field(s) = v
		return nil
	}
}

// Set changes the setting named by a dotted id such as
// "evaluation.commit_timeout_ms". s is left unchanged if the result would
// not validate.
func (s *Settings) Set(id, value string) error {
	set, ok := setters[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, id)
	}
	next := *s
	if err := set(&next, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("setting %s: %w", id, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// HistoryPath resolves the history database location. It returns
// MemoryHistory unchanged.
func (s Settings) HistoryPath() (string, error) {
	if s.History.Path != "" {
		return s.History.Path, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fendesk", "history.db"), nil
}

func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.Rates.RequestTimeoutMs) * time.Millisecond
}
