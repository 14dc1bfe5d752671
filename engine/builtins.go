package engine

import (
	"errors"
	"strings"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

var errNoRates = errors.New("exchange rates are not available")

// builtins are predeclared in every evaluation, underneath the user's bindings.
var builtins = starlark.StringDict{
	"math":    starlarkmath.Module,
	"now":     starlark.NewBuiltin("now", builtinNow),
	"today":   starlark.NewBuiltin("today", builtinToday),
	"random":  starlark.NewBuiltin("random", builtinRandom),
	"rate":    starlark.NewBuiltin("rate", builtinRate),
	"money":   starlark.NewBuiltin("money", builtinMoney),
	"convert": starlark.NewBuiltin("convert", builtinConvert),
}

func init() {
	builtins.Freeze()
}

func builtinNow(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(stateOf(thread).ctx.CurrentTime().Format("2006-01-02 15:04:05 -07:00")), nil
}

func builtinToday(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(stateOf(thread).ctx.CurrentTime().Format("2006-01-02")), nil
}

// random returns a float in [0, 1).
func builtinRandom(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	st := stateOf(thread)
	src := st.ctx.random
	if src == nil {
		return nil, errors.New("no random source configured")
	}
	st.drew = true
	return starlark.Float(float64(src()) / (1 << 32)), nil
}

func builtinRate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var code string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &code); err != nil {
		return nil, err
	}
	r, err := stateOf(thread).rate(strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	return starlark.Float(r), nil
}

func builtinMoney(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var amount starlark.Value
	var code string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &amount, &code); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(amount)
	if !ok {
		return nil, errors.New("money: amount must be a number, got " + amount.Type())
	}
	return newMoney(f, strings.ToUpper(code))
}

// convert(value, to) converts a money value; convert(amount, from, to) converts a number.
func builtinConvert(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		first starlark.Value
		code1 string
		code2 string
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &first, &code1, &code2); err != nil {
		return nil, err
	}

	var from Money
	to := strings.ToUpper(code1)
	if code2 == "" {
		m, ok := first.(Money)
		if !ok {
			return nil, errors.New("convert: a plain number needs a source currency: convert(amount, from, to)")
		}
		from = m
	} else {
		f, ok := starlark.AsFloat(first)
		if !ok {
			return nil, errors.New("convert: amount must be a number, got " + first.Type())
		}
		m, err := newMoney(f, strings.ToUpper(code1))
		if err != nil {
			return nil, err
		}
		from, to = m, strings.ToUpper(code2)
	}
	if !isCurrencyCode(to) {
		return nil, errors.New("convert: " + to + " is not a currency code")
	}
	if from.Currency == to {
		return from, nil
	}

	st := stateOf(thread)
	fromRate, err := st.rate(from.Currency)
	if err != nil {
		return nil, err
	}
	toRate, err := st.rate(to)
	if err != nil {
		return nil, err
	}
	return Money{from.Amount / fromRate * toRate, to}, nil
}
