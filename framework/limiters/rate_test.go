package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateTakeRespectsBurst(t *testing.T) {
	r := NewRate(1, time.Hour)
	require.True(t, r.Take())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, r.TakeContext(ctx))
}

func TestRateZeroBurstIsNoOp(t *testing.T) {
	r := NewRate(0, time.Hour)
	require.True(t, r.Take())
	require.True(t, r.Take())
}

func TestRateCloseFailsLaterTakes(t *testing.T) {
	r := NewRate(1, time.Hour)
	r.Close()
	require.False(t, r.Take())
	require.ErrorIs(t, r.TakeContext(context.Background()), ErrClosed)
}
