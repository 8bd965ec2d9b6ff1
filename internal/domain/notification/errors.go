package notification

import "errors"

// Notification domain errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMalformedFrame       = errors.New("malformed realtime frame")
	ErrHeartbeatFrame       = errors.New("heartbeat frame")
	ErrMissingUserID        = errors.New("user id is required")
	ErrQueueFull            = errors.New("notification queue is full")
)
