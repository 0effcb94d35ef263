package domain

import (
	"context"
	"time"
)

// RateLimiter paces venue requests across every worker and process that
// shares the same key.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking so only one sync runs against a
// snapshot store at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ReportPublisher hands structured sync reports to downstream collaborators.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report SyncReport) error
}
