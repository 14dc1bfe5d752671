package engine

import (
	"fmt"
	"math"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Money is an amount in a single currency.
type Money struct {
	Amount   float64
	Currency string
}

var (
	_ starlark.HasBinary  = Money{}
	_ starlark.HasUnary   = Money{}
	_ starlark.Comparable = Money{}
)

func (m Money) String() string {
	return strconv.FormatFloat(m.Amount, 'f', -1, 64) + " " + m.Currency
}

func (m Money) Type() string          { return "money" }
func (m Money) Freeze()               {}
func (m Money) Truth() starlark.Bool  { return m.Amount != 0 }
func (m Money) Hash() (uint32, error) { return starlark.String(m.String()).Hash() }

func (m Money) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch op {
	case syntax.PLUS, syntax.MINUS:
		o, ok := y.(Money)
		if !ok {
			return nil, nil
		}
		if o.Currency != m.Currency {
			return nil, fmt.Errorf("cannot combine %s and %s; convert one side first", m.Currency, o.Currency)
		}
		if op == syntax.PLUS {
			return Money{m.Amount + o.Amount, m.Currency}, nil
		}
		if side == starlark.Left {
			return Money{m.Amount - o.Amount, m.Currency}, nil
		}
		return Money{o.Amount - m.Amount, m.Currency}, nil
	case syntax.STAR:
		f, ok := starlark.AsFloat(y)
		if !ok {
			return nil, nil
		}
		return Money{m.Amount * f, m.Currency}, nil
	case syntax.SLASH:
		if side == starlark.Right {
			return nil, nil
		}
		if o, ok := y.(Money); ok {
			if o.Currency != m.Currency {
				return nil, fmt.Errorf("cannot divide %s by %s; convert one side first", m.Currency, o.Currency)
			}
			if o.Amount == 0 {
				return nil, fmt.Errorf("floating-point division by zero")
			}
			return starlark.Float(m.Amount / o.Amount), nil
		}
		f, ok := starlark.AsFloat(y)
		if !ok {
			return nil, nil
		}
		if f == 0 {
			return nil, fmt.Errorf("floating-point division by zero")
		}
		return Money{m.Amount / f, m.Currency}, nil
	}
	return nil, nil
}

func (m Money) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return Money{-m.Amount, m.Currency}, nil
	case syntax.PLUS:
		return m, nil
	}
	return nil, nil
}

func (m Money) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	o := y.(Money)
	if o.Currency != m.Currency {
		if op == syntax.EQL {
			return false, nil
		}
		if op == syntax.NEQ {
			return true, nil
		}
		return false, fmt.Errorf("cannot compare %s and %s", m.Currency, o.Currency)
	}
	switch op {
	case syntax.EQL:
		return m.Amount == o.Amount, nil
	case syntax.NEQ:
		return m.Amount != o.Amount, nil
	case syntax.LT:
		return m.Amount < o.Amount, nil
	case syntax.LE:
		return m.Amount <= o.Amount, nil
	case syntax.GT:
		return m.Amount > o.Amount, nil
	case syntax.GE:
		return m.Amount >= o.Amount, nil
	}
	return false, fmt.Errorf("unsupported comparison %s", op)
}

func newMoney(amount float64, code string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, fmt.Errorf("amount must be finite, got %v", amount)
	}
	if !isCurrencyCode(code) {
		return Money{}, fmt.Errorf("%q is not a currency code", code)
	}
	return Money{amount, code}, nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
