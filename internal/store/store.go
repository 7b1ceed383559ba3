package store

import (
	"context"
	"time"

	"github.com/erkineren/homework-monitor/internal/models"
)

// Journal keeps a record of notifications that reached the chat. It is write
// only from the poller's point of view: nothing read back from it decides
// whether to notify.
type Journal interface {
	Close() error
	RecordNotification(ctx context.Context, n models.Notification) error
	CleanOldNotifications(ctx context.Context, olderThan time.Duration) error
}

// Nop is the journal used when no database is configured.
type Nop struct{}

func (Nop) Close() error { return nil }

func (Nop) RecordNotification(context.Context, models.Notification) error { return nil }

func (Nop) CleanOldNotifications(context.Context, time.Duration) error { return nil }
