package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// maxListedFailures caps the failure lines in a sync message.
const maxListedFailures = 10

// SyncMessage renders a dispatcher report.
func SyncMessage(report domain.SyncReport) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "**Range**: %s\n", report.Range)
	fmt.Fprintf(&b, "**Succeeded**: %d (fetched %d)\n", len(report.Succeeded), len(report.Fetched))
	fmt.Fprintf(&b, "**Failed**: %d\n", len(report.Failed))
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "**Duration**: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}

	for i, f := range report.Failed {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "- ... and %d more\n", len(report.Failed)-maxListedFailures)
			break
		}
		reason := "unknown error"
		if f.Err != nil {
			reason = f.Err.Error()
		}
		fmt.Fprintf(&b, "- %s: %s\n", domain.FormatDate(f.Date), reason)
	}

	msg := Message{Body: strings.TrimRight(b.String(), "\n")}
	if report.OK() {
		msg.Title = "Kalshi sync complete: " + report.Range.String()
		msg.Level = LevelSuccess
	} else {
		msg.Title = "Kalshi sync failed: " + report.Range.String()
		msg.Level = LevelFailure
	}
	return msg
}

// AggregateSummary is what the aggregation notification reports.
type AggregateSummary struct {
	RunDir       string
	SnapshotDays int
	FirstDate    time.Time
	LastDate     time.Time
	Latest       domain.DailyVolumeRow
	WindowLength int
	Top          []domain.CategoryRank
}

// AggregateMessage renders the outcome of an aggregation run.
func AggregateMessage(s AggregateSummary) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "**Report date**: %s\n", domain.FormatDate(s.LastDate))
	fmt.Fprintf(&b, "**Snapshots**: %d days (%s to %s)\n",
		s.SnapshotDays, domain.FormatDate(s.FirstDate), domain.FormatDate(s.LastDate))
	fmt.Fprintf(&b, "**Daily volume**: %d\n", s.Latest.TotalVolume)
	fmt.Fprintf(&b, "**%dd rolling volume**: %d", s.WindowLength, s.Latest.TrailingVolume)
	if s.Latest.WindowDays < s.WindowLength {
		fmt.Fprintf(&b, " (%d of %d days present)", s.Latest.WindowDays, s.WindowLength)
	}
	b.WriteString("\n")

	if len(s.Top) > 0 {
		fmt.Fprintf(&b, "\n**Top %d categories (%dd MA)**\n", len(s.Top), s.WindowLength)
		for _, r := range s.Top {
			fmt.Fprintf(&b, "%d. %s: %.2f\n", r.Rank, r.Category, r.TrailingAverage)
		}
	}
	if s.RunDir != "" {
		fmt.Fprintf(&b, "\n**Artifacts**: %s\n", s.RunDir)
	}

	return Message{
		Title: "Kalshi report " + domain.FormatDate(s.LastDate),
		Body:  strings.TrimRight(b.String(), "\n"),
		Level: LevelInfo,
	}
}

// FailureMessage renders a run that aborted before producing a report.
func FailureMessage(mode string, err error) Message {
	return Message{
		Title: fmt.Sprintf("Kalshi %s run failed", mode),
		Body:  fmt.Sprintf("**Error**: %v", err),
		Level: LevelFailure,
	}
}
