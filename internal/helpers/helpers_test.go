package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitter(t *testing.T) {
	assert := require.New(t)

	assert.Equal(time.Duration(0), Jitter(0))

	for i := 0; i < 1000; i++ {
		j := Jitter(500 * time.Millisecond)
		assert.True(j >= -500*time.Millisecond && j <= 500*time.Millisecond, "jitter %s out of bounds", j)
	}
}

func TestRandomize(t *testing.T) {
	tests := []struct {
		Name     string
		Base     time.Duration
		Max      time.Duration
		Jitter   time.Duration
		Expected time.Duration
	}{
		{"positive jitter", 2 * time.Second, 500 * time.Millisecond, 500 * time.Millisecond, 2500 * time.Millisecond},
		{"negative jitter", 2 * time.Second, 500 * time.Millisecond, -500 * time.Millisecond, 1500 * time.Millisecond},
		{"clamped at zero", 100 * time.Millisecond, 500 * time.Millisecond, -500 * time.Millisecond, 0},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)
			d := Randomize(tst.Base, tst.Max, func(max time.Duration) time.Duration {
				assert.Equal(tst.Max, max)
				return tst.Jitter
			})
			assert.Equal(tst.Expected, d)
		})
	}
}

func TestSleep(t *testing.T) {
	t.Run("elapsed", func(t *testing.T) {
		assert := require.New(t)
		start := time.Now()
		assert.NoError(Sleep(context.Background(), 10*time.Millisecond))
		assert.True(time.Since(start) >= 10*time.Millisecond)
	})

	t.Run("context cancelled", func(t *testing.T) {
		assert := require.New(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(context.Canceled, Sleep(ctx, time.Hour))
	})
}
