/*Package access provides utilities for access control

An Authorization is added to the request context by the JWT middleware when the
request carries a valid access token, either as "Authorization: Bearer" header or
as "access_token" cookie.

  ctx = ContextWithAuthorization(ctx, auth)

and retrieved with

  auth := AuthorizationFromContext(ctx)
*/
package access

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

// RoleAdmin is the role of administrators
const RoleAdmin = "admin"

// RoleUser is the role every signed in user has
const RoleUser = "user"

// Authorization is the authorization of a signed in user
type Authorization struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil || a.Roles == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// ContextWithAuthorization returns a new context with this authorization added to it
func ContextWithAuthorization(ctx context.Context, auth *Authorization) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, auth)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, ok := ctx.Value(contextKeyAuthorization).(*Authorization)
	if ok {
		return a
	}
	return nil
}

// RequireAuthorization returns a middleware which rejects requests without authorization
// with http.StatusUnauthorized, and requests lacking any of the roles with http.StatusForbidden.
func RequireAuthorization(roles ...string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthorizationFromContext(r.Context())
			if auth == nil {
				core.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if !auth.HasRole(role) {
					core.WriteError(w, http.StatusForbidden, "Forbidden")
					return
				}
			}
			h.ServeHTTP(w, r)
		})
	}
}
