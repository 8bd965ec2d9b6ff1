package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/handler/http/middleware"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/handler/http/response"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

// NotificationHandler defines the notification handler interface
type NotificationHandler interface {
	// Notifications
	List(w http.ResponseWriter, r *http.Request)
	UnreadCount(w http.ResponseWriter, r *http.Request)
	MarkAsRead(w http.ResponseWriter, r *http.Request)
	MarkAllAsRead(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)

	// Realtime
	Stream(w http.ResponseWriter, r *http.Request)
}

type notificationHandlerImpl struct {
	notifService notification.Service
	jwtService   jwt.Service
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	writeTimeout time.Duration
}

// NewNotificationHandler creates a new notification handler. allowedOrigins
// gates browser WebSocket upgrades; an empty list allows any origin.
func NewNotificationHandler(notifService notification.Service, jwtService jwt.Service, allowedOrigins []string, logger *slog.Logger) NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationHandlerImpl{
		notifService: notifService,
		jwtService:   jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger:       logger.With("component", "notification_handler"),
		writeTimeout: 10 * time.Second,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// getIntQueryParam gets an int query parameter with a default value
func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// getBoolQueryParam gets a bool query parameter with a default value
func getBoolQueryParam(r *http.Request, key string, defaultVal bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

// List returns the most recent notifications of the authenticated user as {"items": [...]}
func (h *notificationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	perPage := getIntQueryParam(r, "per_page", 20)
	unreadOnly := getBoolQueryParam(r, "unread_only", false)

	items, err := h.notifService.GetNotifications(r.Context(), scope.UserID, perPage, unreadOnly)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, notification.ListResponse{Items: items})
}

// UnreadCount returns the count of unread notifications
func (h *notificationHandlerImpl) UnreadCount(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	count, err := h.notifService.GetUnreadCount(r.Context(), scope.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, notification.UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead marks one notification as read
func (h *notificationHandlerImpl) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	notifID := chi.URLParam(r, "id")
	if notifID == "" {
		response.BadRequest(w, "Notification ID is required", nil)
		return
	}

	if err := h.notifService.MarkAsRead(r.Context(), scope.UserID, notifID); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Notification marked as read", nil)
}

// MarkAllAsRead marks all notifications as read
func (h *notificationHandlerImpl) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	if err := h.notifService.MarkAllAsRead(r.Context(), scope.UserID); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "All notifications marked as read", nil)
}

// Create queues a notification. Without recipient_id it goes to the caller.
func (h *notificationHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	var req notification.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("Create decode error", "error", err)
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	if validator.IsEmpty(req.RecipientID) {
		req.RecipientID = scope.UserID
	}
	if req.OrganizationID == "" {
		req.OrganizationID = scope.OrganizationID
	}

	if err := h.notifService.QueueNotification(r.Context(), req); err != nil {
		response.HandleError(w, err)
		return
	}

	response.Accepted(w, "Notification queued")
}

// Stream upgrades to a WebSocket and pushes the user's notifications. The
// connection is scoped by the user_id query parameter; when a token is
// presented it must belong to that user.
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		response.BadRequest(w, "user_id is required", nil)
		return
	}

	if tokenStr := bearerToken(r); tokenStr != "" {
		scope, err := h.jwtService.ValidateAccessToken(tokenStr)
		if err != nil {
			response.Unauthorized(w, "Invalid token")
			return
		}
		if scope.UserID != userID {
			response.Forbidden(w, "Token does not belong to user_id")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cleanup := h.notifService.Subscribe(userID)
	defer cleanup()

	h.logger.Info("Realtime client connected", "user_id", userID, "org_id", r.URL.Query().Get("org_id"))

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	// Reader: answer heartbeats, detect the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.TrimSpace(string(data)) == notification.HeartbeatPing {
				if err := write([]byte(notification.HeartbeatPong)); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := write(data); err != nil {
				h.logger.Debug("Realtime write failed", "user_id", userID, "error", err)
				return
			}
		case <-done:
			h.logger.Info("Realtime client disconnected", "user_id", userID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return r.URL.Query().Get("token")
}
