package notification

import (
	"time"
)

// Kind represents the type of a notification event
type Kind string

const (
	KindNewRisk               Kind = "new_risk"
	KindRiskResolved          Kind = "risk_resolved"
	KindAuditScheduled        Kind = "audit_scheduled"
	KindAuditCompleted        Kind = "audit_completed"
	KindMaintenanceDue        Kind = "maintenance_due"
	KindDirectivePublished    Kind = "directive_published"
	KindDocumentUpdated       Kind = "document_updated"
	KindAircraftStatusChanged Kind = "aircraft_status_changed"

	// KindUnknown marks a realtime frame whose type is outside the known set.
	// The raw type is kept on Frame.RawType.
	KindUnknown Kind = "unknown"
)

// AllKinds returns all known notification kinds
func AllKinds() []Kind {
	return []Kind{
		KindNewRisk,
		KindRiskResolved,
		KindAuditScheduled,
		KindAuditCompleted,
		KindMaintenanceDue,
		KindDirectivePublished,
		KindDocumentUpdated,
		KindAircraftStatusChanged,
	}
}

// ParseKind maps a wire type onto the closed Kind set
func ParseKind(raw string) Kind {
	for _, k := range AllKinds() {
		if string(k) == raw {
			return k
		}
	}
	return KindUnknown
}

// Notification is a single notification as served by the REST API.
// IsRead is authoritative only when the value came from REST.
type Notification struct {
	ID         string    `json:"id" validate:"required"`
	Title      string    `json:"title" validate:"required"`
	Body       string    `json:"body,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
	Kind       Kind      `json:"type,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
}

// Scope identifies whose notifications a realtime connection carries
type Scope struct {
	UserID         string
	OrganizationID string
}
