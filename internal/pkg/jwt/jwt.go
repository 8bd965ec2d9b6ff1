package jwt

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

var ErrInvalidToken = errors.New("invalid token")

type Service interface {
	GenerateAccessToken(userID string, organizationID string) (token string, expiresAt int64, err error)
	ValidateAccessToken(tokenString string) (notification.Scope, error)
	JWTAuth() *jwtauth.JWTAuth
}

// JWTService mints and checks the development backend's access tokens.
// Tokens carry user_id and organization_id, the claims the client uses to
// scope its realtime connection.
type JWTService struct {
	accessTokenTTL time.Duration
	tokenAuth      *jwtauth.JWTAuth
	now            func() time.Time
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, accessTokenTTL time.Duration) Service {
	if accessTokenTTL <= 0 {
		accessTokenTTL = time.Hour
	}
	return &JWTService{
		accessTokenTTL: accessTokenTTL,
		tokenAuth:      jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		now:            time.Now,
	}
}

func (j *JWTService) GenerateAccessToken(userID string, organizationID string) (token string, expiresAt int64, err error) {
	if userID == "" {
		return "", 0, notification.ErrMissingUserID
	}
	now := j.now()
	expiresAt = now.Add(j.accessTokenTTL).Unix()

	claims := map[string]interface{}{
		"sub":             userID,
		"user_id":         userID,
		"organization_id": organizationID,
		"type":            "access",
		"iat":             now.Unix(),
		"exp":             expiresAt,
	}

	_, tokenString, err := j.tokenAuth.Encode(claims)
	return tokenString, expiresAt, err
}

// ValidateAccessToken verifies an access token and returns its scope
func (j *JWTService) ValidateAccessToken(tokenString string) (notification.Scope, error) {
	token, err := jwtauth.VerifyToken(j.tokenAuth, tokenString)
	if err != nil {
		return notification.Scope{}, err
	}
	return ScopeFromToken(token)
}

// ScopeFromToken reads the scope claims of a verified access token
func ScopeFromToken(token jwt.Token) (notification.Scope, error) {
	if token == nil {
		return notification.Scope{}, ErrInvalidToken
	}
	if tokenType, _ := claim(token, "type"); tokenType != "access" {
		return notification.Scope{}, ErrInvalidToken
	}

	userID, ok := claim(token, "user_id")
	if !ok || userID == "" {
		return notification.Scope{}, ErrInvalidToken
	}
	orgID, _ := claim(token, "organization_id")
	return notification.Scope{UserID: userID, OrganizationID: orgID}, nil
}

func claim(token jwt.Token, name string) (string, bool) {
	v, ok := token.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
