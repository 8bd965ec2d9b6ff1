package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

var ErrInvalidToken = errors.New("invalid access token")

// Connector is the part of the realtime manager a session drives
type Connector interface {
	Connect(userID, organizationID string)
	Disconnect()
}

// ScopeFromToken reads the user_id and organization_id claims of an access
// token. The signature is not checked here; the API does that on every call.
// Expired tokens are rejected.
func ScopeFromToken(raw string) (notification.Scope, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return notification.Scope{}, ErrInvalidToken
	}

	token, err := jwt.ParseString(raw,
		jwt.WithVerify(false),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return notification.Scope{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	scope := notification.Scope{
		UserID:         stringClaim(token, "user_id"),
		OrganizationID: stringClaim(token, "organization_id"),
	}
	if scope.UserID == "" {
		scope.UserID = token.Subject()
	}
	if scope.OrganizationID == "" {
		scope.OrganizationID = stringClaim(token, "org_id")
	}
	if scope.UserID == "" {
		return notification.Scope{}, notification.ErrMissingUserID
	}
	return scope, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case json.Number:
		return c.String()
	case float64:
		// numeric ids decode as float64
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	}
	return ""
}

// Resolve merges an explicitly configured scope with the one carried by
// token. Explicit values win; the token is only parsed when needed.
func Resolve(explicit notification.Scope, token string) (notification.Scope, error) {
	if explicit.UserID != "" {
		return explicit, nil
	}
	fromToken, err := ScopeFromToken(token)
	if err != nil {
		return notification.Scope{}, err
	}
	if explicit.OrganizationID != "" {
		fromToken.OrganizationID = explicit.OrganizationID
	}
	return fromToken, nil
}

// Session owns the realtime connection lifecycle of one signed-in user:
// Start connects, End disconnects.
type Session struct {
	conn   Connector
	logger *slog.Logger

	mu     sync.Mutex
	scope  notification.Scope
	active bool
}

func New(conn Connector, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{conn: conn, logger: logger.With("component", "session")}
}

// Start connects for scope. Starting again with another scope reconnects.
func (s *Session) Start(scope notification.Scope) error {
	scope.UserID = strings.TrimSpace(scope.UserID)
	if scope.UserID == "" {
		return notification.ErrMissingUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active && s.scope == scope {
		return nil
	}
	s.scope = scope
	s.active = true
	s.conn.Connect(scope.UserID, scope.OrganizationID)
	s.logger.Info("session started", "user_id", scope.UserID, "org_id", scope.OrganizationID)
	return nil
}

// StartWithToken derives the scope from an access token and starts
func (s *Session) StartWithToken(token string) (notification.Scope, error) {
	scope, err := ScopeFromToken(token)
	if err != nil {
		return notification.Scope{}, err
	}
	return scope, s.Start(scope)
}

// End disconnects. It is a no-op when no session is active.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	s.conn.Disconnect()
	s.logger.Info("session ended", "user_id", s.scope.UserID)
}

// Scope returns the active scope
func (s *Session) Scope() (notification.Scope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope, s.active
}
