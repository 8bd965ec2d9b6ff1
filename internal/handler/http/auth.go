package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/handler/http/response"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

type AuthHandler interface {
	DevToken(w http.ResponseWriter, r *http.Request)
}

// DevTokenRequest asks for an access token scoped to a user
type DevTokenRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	OrganizationID string `json:"organization_id"`
}

// DevTokenResponse carries a freshly minted access token
type DevTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

type AuthHandlerImpl struct {
	jwtService jwt.Service
	logger     *slog.Logger
}

// DevToken implements AuthHandler. It mints an access token for any user and
// is only mounted by the development backend.
func (a *AuthHandlerImpl) DevToken(w http.ResponseWriter, r *http.Request) {
	var req DevTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Error("DevToken decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := validator.Struct(req); err != nil {
		response.HandleError(w, err)
		return
	}

	token, expiresAt, err := a.jwtService.GenerateAccessToken(req.UserID, req.OrganizationID)
	if err != nil {
		a.logger.Error("DevToken generate error", "error", err)
		response.HandleError(w, err)
		return
	}

	a.logger.Info("Issued development token", "user_id", req.UserID, "org_id", req.OrganizationID)
	response.Created(w, "Token issued", DevTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

func NewAuthHandler(jwtService jwt.Service, logger *slog.Logger) AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlerImpl{
		jwtService: jwtService,
		logger:     logger,
	}
}
