package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/hub"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/notifyapi"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/realtime"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/repository/memory"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/service/inbox"
	notificationService "github.com/yrippert-maker/klg-asutk-app-sub001/internal/service/notification"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type stubBackend struct {
	server *httptest.Server
	svc    notification.Service
	jwt    jwt.Service
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	logger := discardLogger()

	svc := notificationService.NewNotificationService(
		memory.NewNotificationRepository(),
		hub.New[string, notification.Event](16),
		notificationService.Config{FlushInterval: 5 * time.Millisecond, Logger: logger},
	)
	jwtSvc := jwt.NewJWTService(handlerTestSecret, time.Hour)

	router := NewRouter(
		logger,
		jwtSvc,
		NewAuthHandler(jwtSvc, logger),
		NewNotificationHandler(svc, jwtSvc, nil, logger),
		[]string{"http://localhost:3000"},
	)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		svc.Stop()
	})

	return &stubBackend{server: server, svc: svc, jwt: jwtSvc}
}

func (b *stubBackend) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := b.jwt.GenerateAccessToken(userID, "org-1")
	require.NoError(t, err)
	return token
}

func (b *stubBackend) do(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, b.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *stubBackend) queue(t *testing.T, userID, title string) {
	t.Helper()
	require.NoError(t, b.svc.QueueNotification(context.Background(), notification.CreateNotificationRequest{
		RecipientID: userID,
		Kind:        notification.KindMaintenanceDue,
		Title:       title,
		EntityType:  "aircraft",
		EntityID:    "RA-89001",
	}))
}

func (b *stubBackend) waitStored(t *testing.T, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		count, _ := b.svc.GetUnreadCount(context.Background(), userID)
		return count == n
	}, waitFor, tick)
}

// Test List - Unauthorized without token
func TestNotificationHandler_List_Unauthorized(t *testing.T) {
	b := newStubBackend(t)

	resp := b.do(t, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = b.do(t, http.MethodGet, "/api/v1/notifications", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Test List - Items body without envelope
func TestNotificationHandler_List_ReturnsItems(t *testing.T) {
	b := newStubBackend(t)
	b.queue(t, "u1", "Maintenance due")
	b.queue(t, "u2", "Someone else")
	b.waitStored(t, "u1", 1)

	resp := b.do(t, http.MethodGet, "/api/v1/notifications?per_page=20&unread_only=false", b.token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body notification.ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Maintenance due", body.Items[0].Title)
	assert.Equal(t, notification.KindMaintenanceDue, body.Items[0].Kind)
	assert.False(t, body.Items[0].IsRead)
}

// Test Create - Defaults recipient to caller
func TestNotificationHandler_Create(t *testing.T) {
	b := newStubBackend(t)
	token := b.token(t, "u1")

	body := []byte(`{"type":"audit_scheduled","title":"Audit on Monday","entity_type":"audit","entity_id":"7"}`)
	resp := b.do(t, http.MethodPost, "/api/v1/notifications", token, body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	b.waitStored(t, "u1", 1)

	resp = b.do(t, http.MethodPost, "/api/v1/notifications", token, []byte(`{"type":"audit_scheduled"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// Test UnreadCount, MarkAsRead, MarkAllAsRead
func TestNotificationHandler_ReadFlow(t *testing.T) {
	b := newStubBackend(t)
	token := b.token(t, "u1")
	b.queue(t, "u1", "First")
	b.queue(t, "u1", "Second")
	b.waitStored(t, "u1", 2)

	items, err := b.svc.GetNotifications(context.Background(), "u1", 20, false)
	require.NoError(t, err)

	resp := b.do(t, http.MethodPost, "/api/v1/notifications/"+items[0].ID+"/read", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(t, http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var count struct {
		Data notification.UnreadCountResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&count))
	assert.Equal(t, 1, count.Data.UnreadCount)

	resp = b.do(t, http.MethodPost, "/api/v1/notifications/missing/read", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = b.do(t, http.MethodPost, "/api/v1/notifications/read-all", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b.waitStored(t, "u1", 0)
}

// Test Stream - Rejected handshakes
func TestNotificationHandler_Stream_Rejects(t *testing.T) {
	b := newStubBackend(t)
	wsURL := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/notifications"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer " + b.token(t, "u2")}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?user_id=u1", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?user_id=u1&token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Test Stream - Heartbeat and push
func TestNotificationHandler_Stream_PushesEvents(t *testing.T) {
	b := newStubBackend(t)
	wsURL := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/notifications?user_id=u1&token=" + b.token(t, "u1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))

	require.Eventually(t, func() bool {
		return len(b.svc.ActiveRecipients()) == 1
	}, waitFor, tick)
	b.queue(t, "u1", "Maintenance due")

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	frame, err := notification.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, notification.KindMaintenanceDue, frame.Kind)
	assert.Equal(t, "aircraft", frame.EntityType)
	assert.Equal(t, "RA-89001", frame.EntityID)
	assert.Equal(t, "Maintenance due", frame.Title)
}

// Client stack against the development backend: REST source, realtime
// manager and inbox working together.
func TestClientStackAgainstBackend(t *testing.T) {
	b := newStubBackend(t)
	token := b.token(t, "u1")

	client, err := notifyapi.NewClient(b.server.URL+"/api/v1", notifyapi.StaticToken(token), b.server.Client())
	require.NoError(t, err)

	manager, err := realtime.NewManager(realtime.Options{BaseURL: b.server.URL, Logger: discardLogger()})
	require.NoError(t, err)
	defer manager.Close()

	box := inbox.New(context.Background(), client, manager, inbox.Options{Logger: discardLogger()})
	defer box.Close()
	assert.Equal(t, 0, box.UnreadCount())

	manager.Connect("u1", "org-1")
	require.Eventually(t, func() bool {
		return manager.IsConnected() && len(b.svc.ActiveRecipients()) == 1
	}, waitFor, tick)

	// Realtime arrival bumps the badge before any refresh
	b.queue(t, "u1", "Directive published")
	require.Eventually(t, func() bool { return box.UnreadCount() == 1 }, waitFor, tick)
	require.Len(t, box.RecentMessages(), 1)
	assert.Equal(t, "Directive published", box.RecentMessages()[0].Title)

	// Refresh covers the delta instead of double counting it
	require.NoError(t, box.Refresh(context.Background()))
	assert.Equal(t, 1, box.UnreadCount())
	items := box.Notifications()
	require.Len(t, items, 1)

	require.NoError(t, box.MarkRead(context.Background(), items[0].ID))
	assert.Equal(t, 0, box.UnreadCount())
	b.waitStored(t, "u1", 0)

	err = box.MarkRead(context.Background(), "missing")
	assert.True(t, notifyapi.IsNotFound(err))

	b.queue(t, "u1", "Audit completed")
	require.Eventually(t, func() bool { return box.UnreadCount() == 1 }, waitFor, tick)
	require.NoError(t, box.MarkAllRead(context.Background()))
	assert.Equal(t, 0, box.UnreadCount())
	b.waitStored(t, "u1", 0)
}
