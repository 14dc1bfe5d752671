// Package session drives evaluations against the live context: committing
// evaluations that persist their effects, and previews that run on a throwaway
// copy.
package session

import (
	"github.com/fendesk/fendesk/engine"
	"github.com/fendesk/fendesk/interrupt"
)

// Evaluate runs expr against ctx with a fresh budget of timeoutMs and returns
// the display string. Unit results display as "". Timeouts come back as errors
// like any other failure; errors.Is(err, engine.ErrInterrupted) tells them apart.
func Evaluate(expr string, timeoutMs int64, ctx *engine.Context) (string, error) {
	out, _, err := evaluate(expr, timeoutMs, ctx)
	return out, err
}

// evaluate also reports whether the outcome may be memoized.
func evaluate(expr string, timeoutMs int64, ctx *engine.Context) (string, bool, error) {
	res, err := engine.Evaluate(expr, ctx, interrupt.New(timeoutMs))
	if err != nil {
		return "", engine.Repeatable(err), err
	}
	if res.IsUnit() {
		return "", res.Repeatable(), nil
	}
	return res.MainText(), res.Repeatable(), nil
}
