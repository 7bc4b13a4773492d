package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsPowerOfTwo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    uint64
		expected bool
	}{
		{0, false},
		{1, true},
		{2, true},
		{3, false},
		{4, true},
		{6, false},
		{1 << 20, true},
		{1<<20 + 1, false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, IsPowerOfTwo(tt.input), "input %d", tt.input)
	}
}

func TestLog2(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint(0), Log2(1))
	require.Equal(t, uint(3), Log2(8))
	require.Equal(t, uint(4), Log2(16))
}

func TestUint64Bytes(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, Uint64ToBytes(258))
	require.Equal(t, uint64(258), BytesToUint64(Uint64ToBytes(258)))
}

func TestRetryHandler(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after failures", func(t *testing.T) {
		t.Parallel()

		calls := 0
		h := RetryHandler{MaxAttempts: 5, Delay: time.Millisecond}
		err := h.Do(context.Background(), "op", func(_ context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("boom")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		calls := 0
		h := RetryHandler{MaxAttempts: 5, Delay: time.Millisecond}
		err := h.Do(context.Background(), "op", func(context.Context, int) error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, ErrRetriesExhausted)
		require.ErrorIs(t, err, boom)
		require.Equal(t, 5, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		h := RetryHandler{MaxAttempts: 5, Delay: time.Hour}
		err := h.Do(ctx, "op", func(context.Context, int) error {
			calls++
			return errors.New("boom")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}
