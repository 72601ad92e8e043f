package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	t.Run("AllowsBurstThenThrottles", func(t *testing.T) {
		req := require.New(t)
		tb := newTokenBucket(3, time.Minute)

		for i := 0; i < 3; i++ {
			req.True(tb.take(), "take %d within burst", i)
		}
		req.False(tb.take())
	})

	t.Run("RefillsOverTime", func(t *testing.T) {
		req := require.New(t)
		tb := newTokenBucket(2, 100*time.Millisecond)

		req.True(tb.take())
		req.True(tb.take())
		req.False(tb.take())

		time.Sleep(120 * time.Millisecond)
		req.True(tb.take())
	})

	t.Run("SanitizesBadParameters", func(t *testing.T) {
		req := require.New(t)
		tb := newTokenBucket(0, -1)

		req.True(tb.take())
		req.False(tb.take())
	})
}
