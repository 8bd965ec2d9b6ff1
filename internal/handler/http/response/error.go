package response

import (
	"errors"
	"net/http"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, jwt.ErrInvalidToken):
		Unauthorized(w, "Invalid token")
	case errors.Is(err, notification.ErrMissingUserID):
		BadRequest(w, "user_id is required", nil)

	// Notification domain errors
	case errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, "Notification not found")
	case errors.Is(err, notification.ErrQueueFull):
		ServiceUnavailable(w, "Notification queue is unavailable")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
