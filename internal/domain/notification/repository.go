package notification

import (
	"context"
)

// Repository defines the notification store used by the stub backend
type Repository interface {
	CreateBatch(ctx context.Context, recipientID string, notifications []Notification) error
	GetByUserID(ctx context.Context, userID string, limit int, unreadOnly bool) ([]Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, id string) error
	MarkAllAsRead(ctx context.Context, userID string) error
}
