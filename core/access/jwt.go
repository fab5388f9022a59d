package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core/logger"
)

// CookieName is the name of the cookie carrying the access token
const CookieName = "access_token"

// DefaultTTL is the lifetime of an access token unless configured otherwise
const DefaultTTL = 24 * time.Hour

// Claims are the claims of an access token
type Claims struct {
	UserID  uuid.UUID `json:"id"`
	IsAdmin bool      `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Authorization returns the authorization the claims grant
func (c *Claims) Authorization() *Authorization {
	auth := &Authorization{UserID: c.UserID, Roles: []string{RoleUser}}
	if c.IsAdmin {
		auth.Roles = append(auth.Roles, RoleAdmin)
	}
	return auth
}

// Issuer issues and verifies HMAC signed access tokens
type Issuer struct {
	Secret []byte
	TTL    time.Duration
}

// Issue returns a signed access token for the user
func (i *Issuer) Issue(userID uuid.UUID, isAdmin bool) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("no secret to sign access tokens")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(i.Secret)
}

// Parse verifies the token and returns its claims
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenFromRequest extracts the access token from the Authorization header or,
// if there is none, from the access token cookie.
func TokenFromRequest(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return bearer[7:]
		}
		return bearer
	}
	if cookie, _ := r.Cookie(CookieName); cookie != nil {
		return cookie.Value
	}
	return ""
}

// NewJwtMiddleware returns a middleware handler to validate access tokens.
//
// Requests without a valid token pass through without authorization, routes that need one
// are guarded with RequireAuthorization. A stale cookie therefore never blocks signin or signout.
func NewJwtMiddleware(issuer *Issuer) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil {
				h.ServeHTTP(w, r)
				return
			}

			tokenString := TokenFromRequest(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			rlog := logger.FromContext(r.Context())
			claims, err := issuer.Parse(tokenString)
			if err != nil {
				rlog.WithError(err).Debugln("ignoring invalid access token")
				h.ServeHTTP(w, r)
				return
			}

			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), claims.UserID.String())
			ctx = ContextWithAuthorization(ctx, claims.Authorization())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
