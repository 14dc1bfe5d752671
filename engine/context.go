// Package engine is the evaluation capability: a Starlark interpreter with a
// cloneable context, currency values, and cooperative interruption.
package engine

import (
	"maps"
	"sort"
	"time"

	"go.starlark.net/starlark"
)

// RateResolver returns how many units of code buy one unit of ReferenceCurrency.
type RateResolver func(code string) (float64, error)

// ReferenceCurrency is never looked up through the resolver; its rate is 1.
const ReferenceCurrency = "USD"

// Context is the interpreter memory consulted and updated by Evaluate.
// It is not safe for concurrent use; callers serialise access.
type Context struct {
	bindings starlark.StringDict
	epochMs  int64
	offsetS  int64
	random   func() uint32
	rates    RateResolver
}

func NewContext() *Context {
	return &Context{
		bindings: make(starlark.StringDict),
	}
}

// SetCurrentTime sets the instant now() reports and its UTC offset in seconds.
func (c *Context) SetCurrentTime(epochMs int64, utcOffsetS int64) {
	c.epochMs = epochMs
	c.offsetS = utcOffsetS
}

// CurrentTime is the configured instant in its configured zone.
func (c *Context) CurrentTime() time.Time {
	return time.UnixMilli(c.epochMs).In(time.FixedZone("", int(c.offsetS)))
}

func (c *Context) SetRandomSource(fn func() uint32) {
	c.random = fn
}

// SetRateResolver replaces the currency resolver. A nil resolver removes it.
func (c *Context) SetRateResolver(r RateResolver) {
	c.rates = r
}

func (c *Context) HasRateResolver() bool {
	return c.rates != nil
}

// Clone returns a copy whose bindings can be rebound without affecting c.
// Bound values are frozen, so nothing reachable from the copy can mutate them.
func (c *Context) Clone() *Context {
	out := *c
	out.bindings = maps.Clone(c.bindings)
	if out.bindings == nil {
		out.bindings = make(starlark.StringDict)
	}
	return &out
}

// Lookup returns a user binding.
func (c *Context) Lookup(name string) (starlark.Value, bool) {
	v, ok := c.bindings[name]
	return v, ok
}

// Names lists user bindings, sorted.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.bindings))
	for k := range c.bindings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c *Context) environment() starlark.StringDict {
	env := make(starlark.StringDict, len(builtins)+len(c.bindings))
	for k, v := range builtins {
		env[k] = v
	}
	for k, v := range c.bindings {
		env[k] = v
	}
	return env
}

// absorb copies globals left by a chunk back into the bindings, frozen.
func (c *Context) absorb(env starlark.StringDict) {
	for name, v := range env {
		if b, ok := builtins[name]; ok && b == v {
			continue
		}
		v.Freeze()
		c.bindings[name] = v
	}
}
