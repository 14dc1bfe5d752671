package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fendesk/fendesk/interrupt"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrInterrupted is wrapped by errors from evaluations whose time budget ran out.
var ErrInterrupted = errors.New("interrupted")

// pollSteps is how many Starlark steps run between two interrupt checks.
const pollSteps = 1000

const inputName = "<input>"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

const stateKey = "fendesk.eval"

type evalState struct {
	ctx   *Context
	intr  interrupt.Interrupt
	fired bool
	// drew is set once random() has been called.
	drew bool
}

func stateOf(thread *starlark.Thread) *evalState {
	return thread.Local(stateKey).(*evalState)
}

// poll checks the interrupt once and latches the answer.
func (st *evalState) poll() bool {
	if !st.fired && st.intr.ShouldInterrupt() {
		st.fired = true
	}
	return st.fired
}

func (st *evalState) rate(code string) (float64, error) {
	if st.poll() {
		return 0, ErrInterrupted
	}
	if code == ReferenceCurrency {
		return 1, nil
	}
	if st.ctx.rates == nil {
		return 0, errNoRates
	}
	r, err := st.ctx.rates(code)
	if err != nil {
		return 0, err
	}
	if r <= 0 {
		return 0, fmt.Errorf("invalid exchange rate %v for %s", r, code)
	}
	return r, nil
}

// Result is the value of a successful evaluation.
type Result struct {
	value  starlark.Value
	output string
	drew   bool
}

// IsUnit reports whether the evaluation produced nothing to show.
func (r *Result) IsUnit() bool {
	return r.value == starlark.None && r.output == ""
}

// MainText is the display form of the result.
func (r *Result) MainText() string {
	switch v := r.value.(type) {
	case starlark.NoneType:
		return strings.TrimRight(r.output, "\n")
	case starlark.String:
		return string(v)
	}
	return r.value.String()
}

func (r *Result) Value() starlark.Value {
	return r.value
}

// Repeatable reports whether evaluating the same input against the same
// context would give the same result. It is false once random() was called.
func (r *Result) Repeatable() bool {
	return !r.drew
}

// randomError marks a failure of an evaluation that called random().
type randomError struct {
	err error
}

func (e *randomError) Error() string { return e.err.Error() }
func (e *randomError) Unwrap() error { return e.err }

// Repeatable reports whether a failed evaluation would fail the same way
// against the same context. It is false once random() was called.
func Repeatable(err error) bool {
	var re *randomError
	return !errors.As(err, &re)
}

// Evaluate runs src against ctx, polling intr at safe points. Assignments
// update ctx. Blank input yields the unit result.
func Evaluate(src string, ctx *Context, intr interrupt.Interrupt) (*Result, error) {
	if strings.TrimSpace(src) == "" {
		return &Result{value: starlark.None}, nil
	}
	if intr == nil {
		intr = interrupt.Never
	}
	st := &evalState{ctx: ctx, intr: intr}

	var out strings.Builder
	thread := &starlark.Thread{
		Name: "fendesk",
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
		OnMaxSteps: func(th *starlark.Thread) {
			if st.poll() {
				th.Cancel(ErrInterrupted.Error())
				return
			}
			th.SetMaxExecutionSteps(th.ExecutionSteps() + pollSteps)
		},
	}
	thread.SetLocal(stateKey, st)
	thread.SetMaxExecutionSteps(pollSteps)

	f, err := fileOptions.Parse(inputName, lower(src), 0)
	if err != nil {
		return nil, err
	}
	v, err := run(f, thread, ctx)
	if err != nil {
		if st.fired {
			err = fmt.Errorf("evaluation %w: time budget exhausted", ErrInterrupted)
		}
		if st.drew {
			err = &randomError{err: err}
		}
		return nil, err
	}
	return &Result{value: v, output: out.String(), drew: st.drew}, nil
}

func run(f *syntax.File, thread *starlark.Thread, ctx *Context) (starlark.Value, error) {
	n := len(f.Stmts)
	var last *syntax.ExprStmt
	if n > 0 {
		last, _ = f.Stmts[n-1].(*syntax.ExprStmt)
	}
	if last != nil && n == 1 {
		return starlark.EvalExprOptions(f.Options, thread, last.X, ctx.environment())
	}

	env := ctx.environment()
	chunk := *f
	if last != nil {
		chunk.Stmts = f.Stmts[:n-1]
	}
	err := starlark.ExecREPLChunk(&chunk, thread, env)
	// the trailing expression still sees this input's bindings unfrozen
	var v starlark.Value = starlark.None
	if err == nil && last != nil {
		v, err = starlark.EvalExprOptions(f.Options, thread, last.X, env)
	}
	// bindings made before a failure are kept, as in an interactive session
	ctx.absorb(env)
	if err != nil {
		return nil, err
	}
	if last != nil {
		return v, nil
	}
	if n > 0 {
		if name, ok := assignedName(f.Stmts[n-1]); ok {
			if v, ok := env[name]; ok {
				return v, nil
			}
		}
	}
	return starlark.None, nil
}

func assignedName(stmt syntax.Stmt) (string, bool) {
	assign, ok := stmt.(*syntax.AssignStmt)
	if !ok {
		return "", false
	}
	id, ok := assign.LHS.(*syntax.Ident)
	if !ok {
		return "", false
	}
	return id.Name, true
}
