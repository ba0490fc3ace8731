package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   ClockTime
		want time.Time
	}{
		{"earlier today rolls to tomorrow", ClockTime{13, 59}, time.Date(2024, 3, 11, 13, 59, 0, 0, time.UTC)},
		{"later today", ClockTime{14, 1}, time.Date(2024, 3, 10, 14, 1, 0, 0, time.UTC)},
		{"exactly now rolls to tomorrow", ClockTime{14, 0}, time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)},
		{"midnight", ClockTime{0, 0}, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"last minute of the day", ClockTime{23, 59}, time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.at, now))
		})
	}
}

func TestNextMonthAndYearRollover(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), Next(ClockTime{8, 0}, now))
}

func TestNextAlwaysWithinOneDay(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5000; i++ {
		now := base.Add(time.Duration(r.Int63n(int64(365 * 24 * time.Hour))))
		at := ClockTime{Hour: r.Intn(24), Minute: r.Intn(60)}

		next := Next(at, now)
		require.True(t, next.After(now), "next %s not after now %s", next, now)
		require.LessOrEqual(t, next.Sub(now), 24*time.Hour, "next %s too far from %s", next, now)
		require.Equal(t, at.Hour, next.Hour())
		require.Equal(t, at.Minute, next.Minute())
	}
}

func TestNextUsesWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 2024-03-10 is the spring-forward day in New York
	now := time.Date(2024, 3, 9, 9, 0, 0, 0, ny)
	next := Next(ClockTime{8, 0}, now)

	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 0, ny), next)
	assert.Equal(t, 22*time.Hour, next.Sub(now))
}

func TestNextIn(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC) // 07:30 in IST

	next := NextIn(ClockTime{8, 0}, now, kolkata)
	assert.Equal(t, time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC), next.UTC())

	assert.Equal(t, Next(ClockTime{8, 0}, now), NextIn(ClockTime{8, 0}, now, nil))
}

func TestSequence(t *testing.T) {
	start := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	seq := NewSequence(ClockTime{8, 0}, nil)

	first := seq.Next(start)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), first)

	t.Run("fire a little late advances exactly one day", func(t *testing.T) {
		next := seq.Next(first.Add(3 * time.Second))
		assert.Equal(t, time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("fire a little early still advances one day", func(t *testing.T) {
		last := seq.Last()
		next := seq.Next(last.Add(-time.Second))
		assert.Equal(t, last.AddDate(0, 0, 1), next)
	})

	t.Run("fire days late skips to the next future instant", func(t *testing.T) {
		now := seq.Last().Add(72*time.Hour + time.Hour)
		next := seq.Next(now)
		assert.True(t, next.After(now))
		assert.LessOrEqual(t, next.Sub(now), 24*time.Hour)
	})

	t.Run("restart", func(t *testing.T) {
		seq.Restart()
		assert.True(t, seq.Last().IsZero())
		assert.Equal(t, first, seq.Next(start))
		assert.Equal(t, ClockTime{8, 0}, seq.At())
	})
}
