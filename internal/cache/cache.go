package cache

import (
	"context"
	"time"
)

// ReportCache stores rendered shift report artifacts by key.
type ReportCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, html string, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func ShiftReportKey(shiftID string) string {
	return "polisdesk:shift-report:" + shiftID
}
