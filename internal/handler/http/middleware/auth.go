package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/handler/http/response"
	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/jwt"
)

type scopeKey struct{}

// AuthRequired rejects requests without a verified access token and stores
// the token's notification scope in the request context. It runs after
// jwtauth.Verifier.
func AuthRequired(next http.Handler) http.Handler {
	hfn := func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil {
			response.Unauthorized(w, err.Error())
			return
		}

		scope, err := jwt.ScopeFromToken(token)
		if err != nil {
			response.HandleError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	}
	return http.HandlerFunc(hfn)
}

// WithScope returns ctx carrying scope
func WithScope(ctx context.Context, scope notification.Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope stored by AuthRequired
func ScopeFromContext(ctx context.Context) (notification.Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(notification.Scope)
	return scope, ok && scope.UserID != ""
}
