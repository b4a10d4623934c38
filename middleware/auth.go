package middleware

import (
	"context"
	"net/http"

	"noteszone/pkg/logger"
	"noteszone/pkg/response"
	"noteszone/pkg/token"
)

type contextKey string

const IdentityKey contextKey = "identity"

// AuthMiddleware rejects requests without a verifiable credential and stores
// the caller's identity in the request context.
func AuthMiddleware(verifier token.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := token.FromRequest(r)
			if credential == "" {
				response.Unauthorized(w, "Unauthorized")
				return
			}

			identity, err := verifier.Verify(credential)
			if err != nil {
				logger.Sugar.Debugf("Invalid token: %v", err)
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithIdentity(ctx context.Context, identity token.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(r *http.Request) (token.Identity, bool) {
	identity, ok := r.Context().Value(IdentityKey).(token.Identity)
	return identity, ok
}

// GetUserID returns the caller's id, or "" for unauthenticated requests.
func GetUserID(r *http.Request) string {
	identity, _ := IdentityFrom(r)
	return identity.ID
}
