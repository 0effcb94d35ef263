package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate maximum length for the report stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// ReportBus implements domain.ReportPublisher. Each report is appended to a
// Redis stream for durable consumers and announced on a Pub/Sub channel for
// live ones. Either name may be empty to skip that leg.
type ReportBus struct {
	c       *Client
	stream  string
	channel string
}

// NewReportBus creates a ReportBus writing to stream and channel.
func NewReportBus(c *Client, stream, channel string) *ReportBus {
	return &ReportBus{c: c, stream: stream, channel: channel}
}

// PublishReport serialises report as JSON and fans it out.
func (b *ReportBus) PublishReport(ctx context.Context, report domain.SyncReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: encode report: %w", err)
	}

	if b.stream != "" {
		args := &redis.XAddArgs{
			Stream: b.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: streamValues(report, payload),
		}
		if err := b.c.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redis: stream append %s: %w", b.stream, err)
		}
	}
	if b.channel != "" {
		if err := b.c.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
			return fmt.Errorf("redis: publish %s: %w", b.channel, err)
		}
	}
	return nil
}

// streamValues carries a few flat fields beside the JSON payload so the
// stream can be inspected with XRANGE without decoding.
func streamValues(report domain.SyncReport, payload []byte) map[string]interface{} {
	status := "ok"
	if !report.OK() {
		status = "failed"
	}
	return map[string]interface{}{
		"start":     domain.FormatDate(report.Range.Start),
		"end":       domain.FormatDate(report.Range.End),
		"status":    status,
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
		"payload":   payload,
	}
}

var _ domain.ReportPublisher = (*ReportBus)(nil)
