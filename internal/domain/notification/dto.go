package notification

// ============= Request DTOs =============

// ListParams are the paging parameters of the list endpoint
type ListParams struct {
	PerPage    int
	UnreadOnly bool
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	OrganizationID string `json:"organization_id"`
	RecipientID    string `json:"recipient_id" validate:"required"`
	Kind           Kind   `json:"type" validate:"required"`
	Title          string `json:"title" validate:"required"`
	Body           string `json:"body"`
	EntityType     string `json:"entity_type" validate:"required"`
	EntityID       string `json:"entity_id"`
}

// ============= Response DTOs =============

// ListResponse is the body of the list endpoint
type ListResponse struct {
	Items []Notification `json:"items"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// ============= Realtime =============

// Event is a notification pushed to realtime subscribers
type Event struct {
	Type       Kind   `json:"type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body,omitempty"`
	Timestamp  string `json:"timestamp"`
}
