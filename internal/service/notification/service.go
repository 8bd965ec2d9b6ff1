package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/hub"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

// Config holds notification service configuration
type Config struct {
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 1 second
	WorkerCount   int           // default: 2
	QueueSize     int           // default: 1000
	Logger        *slog.Logger
	Now           func() time.Time
}

type service struct {
	repo   notification.Repository
	hub    *hub.Hub[string, notification.Event]
	config Config
	logger *slog.Logger

	queue    chan notification.CreateNotificationRequest
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewNotificationService creates a new notification service with background workers
func NewNotificationService(repo notification.Repository, events *hub.Hub[string, notification.Event], cfg Config) notification.Service {
	// Set defaults
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &service{
		repo:   repo,
		hub:    events,
		config: cfg,
		logger: cfg.Logger.With("component", "notification_service"),
		queue:  make(chan notification.CreateNotificationRequest, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}

	// Start background workers
	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("Notification service started",
		"workers", cfg.WorkerCount, "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval)

	return s
}

// worker is the background worker that processes notification queue
func (s *service) worker(id int) {
	defer s.wg.Done()

	batch := make([]notification.CreateNotificationRequest, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Group by recipient so each insert and fan-out stays per user
		byRecipient := make(map[string][]notification.Notification)
		var order []string
		for _, req := range batch {
			if _, seen := byRecipient[req.RecipientID]; !seen {
				order = append(order, req.RecipientID)
			}
			byRecipient[req.RecipientID] = append(byRecipient[req.RecipientID], s.toEntity(req))
		}

		for _, recipientID := range order {
			items := byRecipient[recipientID]
			if err := s.repo.CreateBatch(ctx, recipientID, items); err != nil {
				s.logger.Error("Failed to batch insert", "worker", id, "recipient_id", recipientID, "error", err)
				continue
			}
			s.logger.Debug("Inserted notifications", "worker", id, "recipient_id", recipientID, "count", len(items))
			for _, n := range items {
				s.publish(recipientID, n)
			}
		}

		batch = batch[:0]
	}

	for {
		select {
		case req := <-s.queue:
			batch = append(batch, req)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			// drain whatever is still queued
			for {
				select {
				case req := <-s.queue:
					batch = append(batch, req)
				default:
					flush()
					return
				}
			}
		}
	}
}

// QueueNotification queues a notification for async processing
func (s *service) QueueNotification(ctx context.Context, req notification.CreateNotificationRequest) error {
	if err := validator.Struct(req); err != nil {
		return err
	}

	select {
	case <-s.stopCh:
		return notification.ErrQueueFull
	default:
	}

	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Queue full, try direct insert
		return s.directInsert(ctx, req)
	}
}

// directInsert inserts a notification directly when queue is full
func (s *service) directInsert(ctx context.Context, req notification.CreateNotificationRequest) error {
	n := s.toEntity(req)
	if err := s.repo.CreateBatch(ctx, req.RecipientID, []notification.Notification{n}); err != nil {
		return err
	}
	s.publish(req.RecipientID, n)
	return nil
}

func (s *service) publish(recipientID string, n notification.Notification) {
	delivered := s.hub.Publish(recipientID, notification.Event{
		Type:       n.Kind,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		ID:         n.ID,
		Title:      n.Title,
		Body:       n.Body,
		Timestamp:  n.CreatedAt.UTC().Format(time.RFC3339),
	})
	s.logger.Debug("Published notification", "recipient_id", recipientID, "type", n.Kind, "subscribers", delivered)
}

func (s *service) toEntity(req notification.CreateNotificationRequest) notification.Notification {
	return notification.Notification{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Body:       req.Body,
		IsRead:     false,
		CreatedAt:  s.config.Now(),
		Kind:       req.Kind,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
	}
}

// GetNotifications retrieves the most recent notifications for a user
func (s *service) GetNotifications(ctx context.Context, userID string, perPage int, unreadOnly bool) ([]notification.Notification, error) {
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.repo.GetByUserID(ctx, userID, perPage, unreadOnly)
}

// GetUnreadCount returns the count of unread notifications
func (s *service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// MarkAsRead marks a notification as read
func (s *service) MarkAsRead(ctx context.Context, userID string, id string) error {
	return s.repo.MarkAsRead(ctx, userID, id)
}

// MarkAllAsRead marks all notifications as read
func (s *service) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// Subscribe returns the realtime event channel of a user and its cleanup func
func (s *service) Subscribe(userID string) (<-chan notification.Event, func()) {
	return s.hub.Subscribe(userID)
}

// ActiveRecipients lists users with at least one realtime subscriber
func (s *service) ActiveRecipients() []string {
	return s.hub.Keys()
}

// Stop flushes queued notifications and stops the workers
func (s *service) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping notification service...")
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("Notification service stopped")
	})
}
