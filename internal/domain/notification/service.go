package notification

import (
	"context"
)

// Source is the authoritative REST side of notifications
type Source interface {
	List(ctx context.Context, params ListParams) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Feed is the realtime side: every decoded frame is delivered to every
// subscriber in arrival order until its cancel func is called.
type Feed interface {
	Subscribe() (<-chan Frame, func())
}

// Service defines the notification service behind the development stub backend
type Service interface {
	// Queue notification (async processing via background workers)
	QueueNotification(ctx context.Context, req CreateNotificationRequest) error

	// Direct operations
	GetNotifications(ctx context.Context, userID string, perPage int, unreadOnly bool) ([]Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, id string) error
	MarkAllAsRead(ctx context.Context, userID string) error

	// Realtime subscription
	Subscribe(userID string) (<-chan Event, func())
	ActiveRecipients() []string

	// Lifecycle
	Stop()
}
