package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fendesk/fendesk/engine"
)

func TestStoreGenerations(t *testing.T) {
	st := NewStore()
	require.Equal(t, uint64(0), st.Generation())

	require.NoError(t, st.Commit(func(live *engine.Context) error {
		_, err := Evaluate("a = 1", 100, live)
		return err
	}))
	require.Equal(t, uint64(1), st.Generation())
	require.Contains(t, st.Names(), "a")

	boom := errors.New("boom")
	require.ErrorIs(t, st.Commit(func(live *engine.Context) error { return boom }), boom)
	require.Equal(t, uint64(2), st.Generation())

	st.InstallRateResolver(func(string) (float64, error) { return 1, nil })
	require.Equal(t, uint64(3), st.Generation())
}

func TestSnapshotIsPrivate(t *testing.T) {
	st := NewStore()
	ctx, gen := st.SnapshotForPreview()
	require.Equal(t, uint64(0), gen)
	_, err := Evaluate("leak = 1", 100, ctx)
	require.NoError(t, err)
	require.NotContains(t, st.Names(), "leak")
}

func TestStoreSeedsClock(t *testing.T) {
	at := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	st := NewStore(WithClock(func() time.Time { return at }), WithRandomSource(func() uint32 { return 0 }))
	ctx, _ := st.SnapshotForPreview()
	require.True(t, ctx.CurrentTime().Equal(at))

	out, err := Evaluate("random()", 100, ctx)
	require.NoError(t, err)
	require.Equal(t, "0.0", out)
}
