package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

type notificationRepository struct {
	mu     sync.RWMutex
	byUser map[string][]notification.Notification
}

// NewNotificationRepository creates an in-memory notification store. Each
// recipient's notifications are kept newest first.
func NewNotificationRepository() notification.Repository {
	return &notificationRepository{byUser: make(map[string][]notification.Notification)}
}

// CreateBatch stores notifications for a recipient
func (r *notificationRepository) CreateBatch(ctx context.Context, recipientID string, notifications []notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	items := append(r.byUser[recipientID], notifications...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	r.byUser[recipientID] = items
	return nil
}

// GetByUserID returns up to limit notifications, newest first. A
// non-positive limit returns everything.
func (r *notificationRepository) GetByUserID(ctx context.Context, userID string, limit int, unreadOnly bool) ([]notification.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]notification.Notification, 0)
	for _, n := range r.byUser[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.byUser[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkAsRead marks one notification as read
func (r *notificationRepository) MarkAsRead(ctx context.Context, userID string, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.byUser[userID]
	for i := range items {
		if items[i].ID == id {
			items[i].IsRead = true
			return nil
		}
	}
	return notification.ErrNotificationNotFound
}

// MarkAllAsRead marks all notifications as read for a user
func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.byUser[userID]
	for i := range items {
		items[i].IsRead = true
	}
	return nil
}
