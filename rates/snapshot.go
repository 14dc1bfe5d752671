// Package rates keeps a dated table of currency exchange rates: a per-user cache
// file that is trusted for one calendar day, and a remote source used on a miss.
package rates

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ReferenceCurrency is the currency every resolved rate is expressed against.
const ReferenceCurrency = "USD"

// DateLayout is the layout of Snapshot.Date.
const DateLayout = "2006-01-02"

// Snapshot is a dated table of rates relative to Base.
type Snapshot struct {
	Date  string             `json:"date"`
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

var ErrMalformed = errors.New("malformed exchange rate snapshot")

// Today formats t's local calendar day the way snapshots are dated.
func Today(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// FreshOn reports whether the snapshot is dated on the local calendar day of t.
// Only the date strings are compared; time of day plays no part.
func (s *Snapshot) FreshOn(t time.Time) bool {
	return s.Date == Today(t)
}

// Validate checks the shape invariants: a date, a base, and positive finite rates.
func (s *Snapshot) Validate() error {
	if s.Date == "" {
		return fmt.Errorf("%w: missing date", ErrMalformed)
	}
	if s.Base == "" {
		return fmt.Errorf("%w: missing base", ErrMalformed)
	}
	if len(s.Rates) == 0 {
		return fmt.Errorf("%w: no rates", ErrMalformed)
	}
	for code, r := range s.Rates {
		if code == "" {
			return fmt.Errorf("%w: empty currency code", ErrMalformed)
		}
		if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
			return fmt.Errorf("%w: rate for %s is %v", ErrMalformed, code, r)
		}
	}
	return nil
}

func (s *Snapshot) lookup(code string) (float64, bool) {
	if code == s.Base {
		return 1, true
	}
	r, ok := s.Rates[code]
	return r, ok
}

// Rate returns how many units of code buy one unit of the reference currency.
// Snapshots based on another currency are normalised through their USD entry.
func (s *Snapshot) Rate(code string) (float64, error) {
	code = strings.ToUpper(code)
	r, ok := s.lookup(code)
	if !ok {
		return 0, fmt.Errorf("failed to get exchange rate for %s", code)
	}
	if s.Base == ReferenceCurrency {
		return r, nil
	}
	ref, ok := s.lookup(ReferenceCurrency)
	if !ok {
		return 0, fmt.Errorf("snapshot based on %s has no %s rate", s.Base, ReferenceCurrency)
	}
	return r / ref, nil
}

// Codes lists the currencies the snapshot can resolve, sorted.
func (s *Snapshot) Codes() []string {
	out := make([]string, 0, len(s.Rates)+1)
	seenBase := false
	for code := range s.Rates {
		if code == s.Base {
			seenBase = true
		}
		out = append(out, code)
	}
	if !seenBase {
		out = append(out, s.Base)
	}
	sort.Strings(out)
	return out
}
