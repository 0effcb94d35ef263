package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a job on a cron schedule.
type Scheduler struct {
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
	trigger <-chan struct{}
}

// NewScheduler creates a Scheduler that evaluates cron expressions in loc.
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		loc:    loc,
		logger: logger.With(slog.String("component", "scheduler")),
		now:    time.Now,
	}
}

// WithTrigger makes every receive on ch start an extra run between
// scheduled ones. The schedule is recomputed afterwards.
func (s *Scheduler) WithTrigger(ch <-chan struct{}) *Scheduler {
	s.trigger = ch
	return s
}

// Run executes job immediately and then at every time matching cronExpr
// until ctx is cancelled. Job failures are logged and do not stop the
// schedule. It supports 5-field expressions:
// "minute hour day-of-month month day-of-week"
//
// Example: "30 6 * * *" runs at 06:30 every day.
func (s *Scheduler) Run(ctx context.Context, cronExpr string, job Job) error {
	cron, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	s.logger.Info("scheduler started", slog.String("cron", cronExpr), slog.String("tz", s.loc.String()))

	s.runJob(ctx, job)

	for {
		next, err := cron.Next(s.now().In(s.loc))
		if err != nil {
			return err
		}

		wait := next.Sub(s.now())
		s.logger.Info("waiting for next run", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runJob(ctx, job)
		case <-s.trigger:
			timer.Stop()
			s.logger.Info("manual run triggered")
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if err := job(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled run failed", slog.String("error", err.Error()))
	}
}

// cronField matches one field of a cron expression. starred records that
// the field began with "*", which exempts a day field from the OR rule.
type cronField struct {
	wildcard bool
	starred  bool
	values   map[int]bool
}

func (f cronField) matches(val int) bool {
	return f.wildcard || f.values[val]
}

// parseCronField parses "*", "5", "1,15", "1-5" and "*/10" forms.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true, starred: true}, nil
	}

	out := cronField{starred: strings.HasPrefix(field, "*"), values: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			step = n
			part = base
		}

		start, end := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
			if end, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			start, end = v, v
		}

		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("value %q outside %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			out.values[v] = true
		}
	}
	return out, nil
}

// Cron is a parsed 5-field cron expression.
type Cron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Cron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return Cron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}

	return Cron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// matches follows cron's day rule: when both day-of-month and day-of-week
// are restricted, a day matching either one qualifies.
func (c Cron) matches(t time.Time) bool {
	if !c.minute.matches(t.Minute()) || !c.hour.matches(t.Hour()) || !c.month.matches(int(t.Month())) {
		return false
	}
	dom := c.dayOfMonth.matches(t.Day())
	dow := c.dayOfWeek.matches(int(t.Weekday()))
	if !c.dayOfMonth.starred && !c.dayOfWeek.starred {
		return dom || dow
	}
	return dom && dow
}

// Next returns the first matching minute strictly after after, in after's
// location. It searches up to one year ahead.
func (c Cron) Next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}
