/*
Package backend wires the blog backend together.

New creates the relations it needs, installs the middleware chain on the router and
adds all routes:

	POST /api/auth/signup     create a user
	POST /api/auth/signin     sign in, returns an access token
	POST /api/user/signout    clear the access token cookie
	GET  /api/user/test       liveness probe
	GET  /api/user/me         the signed in user
	GET  /api/statistics      user statistics, admin only
	GET  /version             build version
	GET  /metrics             Prometheus metrics

Middleware runs in this order: request ID, recovery, CORS, metrics, access token.
The /api/auth routes are rate limited per client IP. The client IP is the peer address
unless TrustProxy is set.
*/
package backend

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core/access"
	"github.com/relabs-tech/blog/core/auth"
	"github.com/relabs-tech/blog/core/csql"
	"github.com/relabs-tech/blog/core/logger"
	"github.com/relabs-tech/blog/core/metrics"
	"github.com/relabs-tech/blog/core/registry"
	"github.com/relabs-tech/blog/core/user"
)

// Backend is the blog rest backend
type Backend struct {
	db         *csql.DB
	router     *mux.Router
	corsOrigin string
	users      *user.Store
	issuer     *access.Issuer
	auth       *auth.Handler
	limiter    *rateLimiter
	trustProxy bool
	// Registry is the JSON object registry for this backend's schema
	Registry registry.Registry
}

// Builder is a builder helper for the Backend
type Builder struct {
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// JWTSecret signs access tokens. If empty, a secret is generated once and kept in the registry.
	JWTSecret string
	// JWTTTL is the lifetime of access tokens. Defaults to 24 hours.
	JWTTTL time.Duration
	// BcryptCost is the cost for password hashes. Defaults to 10.
	BcryptCost int
	// CORSOrigin is the allowed origin for cross origin requests. Defaults to "*".
	CORSOrigin string
	// RateLimit is the number of requests per second a client may send to /api/auth.
	// Zero disables rate limiting.
	RateLimit float64
	// RateBurst is the burst size of the rate limiter
	RateBurst int
	// TrustProxy takes the client address for rate limiting from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets these headers.
	TrustProxy bool
	// SecureCookie marks the access token cookie as https only
	SecureCookie bool
}

// New realizes the actual backend. It creates the sql relations (if they
// do not exist) and adds actual routes to router
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("DB is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	b := &Backend{
		db:         bb.DB,
		router:     bb.Router,
		corsOrigin: bb.CORSOrigin,
		trustProxy: bb.TrustProxy,
		Registry:   registry.New(bb.DB),
		users:      user.NewStore(bb.DB),
	}
	if b.corsOrigin == "" {
		b.corsOrigin = "*"
	}

	secret, err := b.jwtSecret(bb.JWTSecret)
	if err != nil {
		panic(err)
	}
	b.issuer = &access.Issuer{Secret: secret, TTL: bb.JWTTTL}
	b.auth = auth.New(&auth.Builder{
		Users:        b.users,
		Issuer:       b.issuer,
		Hasher:       auth.Hasher{Cost: bb.BcryptCost},
		SecureCookie: bb.SecureCookie,
	})
	if bb.RateLimit > 0 {
		b.limiter = newRateLimiter(bb.RateLimit, bb.RateBurst)
	}

	logger.AddRequestID(b.router)
	b.handleRecovery()
	b.handleCORS()
	b.router.Use(metrics.InstrumentHandler)
	b.router.Use(access.NewJwtMiddleware(b.issuer))

	b.handleRoutes(b.router)
	return b
}

// Router returns the router the backend serves on
func (b *Backend) Router() *mux.Router {
	return b.router
}

// Issuer returns the issuer of the access tokens
func (b *Backend) Issuer() *access.Issuer {
	return b.issuer
}

func (b *Backend) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("backend: HandleRoutes")

	authRouter := router.PathPrefix("/api/auth").Subrouter()
	if b.limiter != nil {
		if b.trustProxy {
			authRouter.Use(handlers.ProxyHeaders)
		}
		authRouter.Use(b.limiter.handler)
	}
	b.auth.HandleAuthRoutes(authRouter)
	b.auth.HandleUserRoutes(router.PathPrefix("/api/user").Subrouter())

	b.handleStatistics(router)
	b.handleVersion(router)

	logger.Default().Debugln("  handle route: /metrics GET")
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodOptions, http.MethodGet)
}
