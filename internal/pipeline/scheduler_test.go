package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron_Rejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestCron_Next(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "daily at fixed time",
			expr:  "30 6 * * *",
			after: time.Date(2025, 9, 1, 7, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 9, 2, 6, 30, 0, 0, time.UTC),
		},
		{
			name:  "step minutes",
			expr:  "*/15 * * * *",
			after: time.Date(2025, 9, 1, 7, 1, 0, 0, time.UTC),
			want:  time.Date(2025, 9, 1, 7, 15, 0, 0, time.UTC),
		},
		{
			name:  "weekday range skips weekend",
			expr:  "0 9 * * 1-5",
			after: time.Date(2025, 9, 5, 10, 0, 0, 0, time.UTC), // Friday
			want:  time.Date(2025, 9, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "restricted day fields are ORed",
			expr:  "0 9 11 * 1",
			after: time.Date(2025, 9, 9, 10, 0, 0, 0, time.UTC), // Tuesday
			want:  time.Date(2025, 9, 11, 9, 0, 0, 0, time.UTC), // Thursday
		},
		{
			name:  "weekday matches without day of month",
			expr:  "0 9 20 * 5",
			after: time.Date(2025, 9, 9, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 9, 12, 9, 0, 0, 0, time.UTC), // Friday
		},
		{
			name:  "stepped day of month still ANDs with weekday",
			expr:  "0 9 */2 * 1",
			after: time.Date(2025, 9, 9, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC), // odd Monday
		},
		{
			name:  "strictly after",
			expr:  "0 9 * * *",
			after: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "evaluated in location",
			expr:  "0 6 * * *",
			after: time.Date(2025, 9, 1, 12, 0, 0, 0, ny),
			want:  time.Date(2025, 9, 2, 6, 0, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCron(tt.expr)
			require.NoError(t, err)
			got, err := c.Next(tt.after)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestScheduler_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	s := NewScheduler(time.UTC, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	runs := 0
	err := s.Run(ctx, "0 0 1 1 *", func(context.Context) error {
		runs++
		cancel()
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runs)
}

func TestScheduler_InvalidExpression(t *testing.T) {
	s := NewScheduler(nil, discardLogger())
	err := s.Run(context.Background(), "bogus", func(context.Context) error {
		t.Fatal("job must not run")
		return nil
	})
	require.Error(t, err)
}

func TestScheduler_TriggerRunsBetweenSchedules(t *testing.T) {
	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}
	s := NewScheduler(time.UTC, discardLogger()).WithTrigger(trigger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	err := s.Run(ctx, "0 0 1 1 *", func(context.Context) error {
		runs++
		if runs == 2 {
			cancel()
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, runs)
	assert.Empty(t, trigger)
}
