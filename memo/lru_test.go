package memo

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberAndLookup(t *testing.T) {
	c := New(8)
	_, ok := c.Lookup(1, "1 + 2")
	require.False(t, ok)

	c.Remember(1, "1 + 2", OutcomeOf("3", nil))
	o, ok := c.Lookup(1, "1 + 2")
	require.True(t, ok)
	text, err := o.Result()
	require.NoError(t, err)
	require.Equal(t, "3", text)

	_, ok = c.Lookup(2, "1 + 2")
	require.False(t, ok, "another generation must not hit")

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(2), stats.Misses)
}

func TestFailedOutcome(t *testing.T) {
	c := New(8)
	c.Remember(1, "bogus$$", OutcomeOf("", errors.New("got illegal token")))
	o, ok := c.Lookup(1, "bogus$$")
	require.True(t, ok)
	_, err := o.Result()
	require.EqualError(t, err, "got illegal token")
}

func TestNewGenerationPurges(t *testing.T) {
	c := New(8)
	c.Remember(1, "a", OutcomeOf("1", nil))
	c.Remember(1, "b", OutcomeOf("2", nil))
	require.Equal(t, 2, c.Stats().Size)

	c.Remember(2, "a", OutcomeOf("10", nil))
	require.Equal(t, 1, c.Stats().Size)
	_, ok := c.Lookup(1, "b")
	require.False(t, ok)

	// late arrivals from an older generation are dropped
	c.Remember(1, "c", OutcomeOf("3", nil))
	_, ok = c.Lookup(1, "c")
	require.False(t, ok)
}

func TestEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 3; i++ {
		c.Remember(1, fmt.Sprint(i), OutcomeOf(fmt.Sprint(i), nil))
	}
	// touch 0 so 1 becomes the oldest
	_, ok := c.Lookup(1, "0")
	require.True(t, ok)
	c.Remember(1, "3", OutcomeOf("3", nil))

	require.Equal(t, 3, c.Stats().Size)
	_, ok = c.Lookup(1, "1")
	require.False(t, ok)
	_, ok = c.Lookup(1, "0")
	require.True(t, ok)
}

func TestDefaultSize(t *testing.T) {
	require.Equal(t, 256, New(0).Stats().MaxSize)
}

func TestConcurrentUse(t *testing.T) {
	c := New(64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				expr := fmt.Sprint(j % 10)
				c.Remember(1, expr, OutcomeOf(expr, nil))
				if o, ok := c.Lookup(1, expr); ok {
					text, _ := o.Result()
					assert.Equal(t, expr, text)
				}
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Stats().Size, 10)
}

func TestKeyHashStable(t *testing.T) {
	h1, err := Key{Generation: 3, Expr: "x"}.Hash()
	require.NoError(t, err)
	h2, err := Key{Generation: 3, Expr: "x"}.Hash()
	require.NoError(t, err)
	h3, err := Key{Generation: 4, Expr: "x"}.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}
