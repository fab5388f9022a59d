/*
Package auth implements the authentication API of the blog backend.

Routes below /api/auth:

	POST /signup   {username, email, password}  creates a user
	POST /signin   {email, password}            returns the user and an access token

Routes below /api/user:

	POST /signout  clears the access token cookie
	GET  /test     liveness probe for the SPA
	GET  /me       the signed in user

Signup answers with the envelope {"success", "message", "user"}. All other errors use the
global envelope {"success": false, "statusCode", "message"}.
*/
package auth

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/access"
	"github.com/relabs-tech/blog/core/logger"
	"github.com/relabs-tech/blog/core/metrics"
	"github.com/relabs-tech/blog/core/schema"
	"github.com/relabs-tech/blog/core/user"
)

//go:embed schemas
var schemaFS embed.FS

const (
	signUpSchemaID = "https://blog.relabs.tech/schemas/signup.json"
	signInSchemaID = "https://blog.relabs.tech/schemas/signin.json"

	maxBodySize = 1 << 20
)

// Messages of the API
const (
	MessageFieldsRequired   = "All fields are required"
	MessageSignUpSuccessful = "SignUp Successful"
	MessageSignInSuccessful = "SignIn Successful"
	MessageSignedOut        = "User has been signed out"
	MessageInternalError    = "Internal Server Error"
	MessageUserNotFound     = "User not found"
	MessageInvalidPassword  = "Invalid password"
	MessagePasswordTooLong  = "Password must not exceed 72 bytes"
	MessageInvalidJSON      = "invalid json data"
	MessageAPIWorking       = "API is working!"
)

// Users is the user storage the handlers work on
type Users interface {
	Insert(ctx context.Context, u *user.User) error
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// SignUpRequest is the body of a signup request
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInRequest is the body of a signin request
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PublicUser is the part of a user that is echoed after signup
type PublicUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SignUpResponse is the response of a signup request
type SignUpResponse struct {
	core.Response
	User *PublicUser `json:"user,omitempty"`
}

// UserResponse is the response of signin and of the current user route
type UserResponse struct {
	core.Response
	User  *user.User `json:"user,omitempty"`
	Token string     `json:"token,omitempty"`
}

// Handler serves the authentication routes
type Handler struct {
	users        Users
	hasher       Hasher
	issuer       *access.Issuer
	validator    *schema.Validator
	secureCookie bool
}

// Builder is a builder helper for the Handler
type Builder struct {
	// Users is the user store. This is mandatory.
	Users Users
	// Issuer signs access tokens. This is mandatory.
	Issuer *access.Issuer
	// Hasher hashes passwords. The zero value hashes with DefaultCost.
	Hasher Hasher
	// SecureCookie marks the access token cookie as secure (https only)
	SecureCookie bool
}

// New creates the handler. It panics if mandatory parts are missing.
func New(b *Builder) *Handler {
	if b.Users == nil {
		panic("Users is missing")
	}
	if b.Issuer == nil {
		panic("Issuer is missing")
	}
	schemas, err := fs.Sub(schemaFS, "schemas")
	if err != nil {
		panic(err)
	}
	validator, err := schema.NewValidatorFromFS(schemas)
	if err != nil {
		panic(err)
	}
	for _, id := range []string{signUpSchemaID, signInSchemaID} {
		if !validator.HasSchema(id) {
			panic("schema " + id + " is missing")
		}
	}
	return &Handler{
		users:        b.Users,
		hasher:       b.Hasher,
		issuer:       b.Issuer,
		validator:    validator,
		secureCookie: b.SecureCookie,
	}
}

// HandleAuthRoutes adds signup and signin to router, which is expected to be the /api/auth subrouter
func (h *Handler) HandleAuthRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("  handle route: /api/auth/signup POST")
	router.HandleFunc("/signup", h.signUp).Methods(http.MethodOptions, http.MethodPost)
	rlog.Debugln("  handle route: /api/auth/signin POST")
	router.HandleFunc("/signin", h.signIn).Methods(http.MethodOptions, http.MethodPost)
}

// HandleUserRoutes adds the user routes to router, which is expected to be the /api/user subrouter
func (h *Handler) HandleUserRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("  handle route: /api/user/test GET")
	router.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		core.WriteJSON(w, http.StatusOK, map[string]string{"message": MessageAPIWorking})
	}).Methods(http.MethodOptions, http.MethodGet)

	rlog.Debugln("  handle route: /api/user/signout POST")
	router.HandleFunc("/signout", h.signOut).Methods(http.MethodOptions, http.MethodPost)

	rlog.Debugln("  handle route: /api/user/me GET")
	router.Handle("/me", access.RequireAuthorization()(http.HandlerFunc(h.me))).Methods(http.MethodOptions, http.MethodGet)
}

// readBody reads a JSON body. An empty body reads as an empty object. It writes the error
// response itself and returns false if the body cannot be used.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		core.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}"), true
	}
	if !json.Valid(body) {
		core.WriteError(w, http.StatusBadRequest, MessageInvalidJSON)
		return nil, false
	}
	return body, true
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	body, ok := readBody(w, r)
	if !ok {
		metrics.RecordSignup(metrics.SignupInvalid)
		return
	}

	if err := h.validator.ValidateBytes(body, signUpSchemaID); err != nil {
		rlog.Debugln("signup rejected:", err)
		metrics.RecordSignup(metrics.SignupInvalid)
		core.WriteJSON(w, http.StatusBadRequest, SignUpResponse{Response: core.Response{Message: MessageFieldsRequired}})
		return
	}
	var request SignUpRequest
	if err := json.Unmarshal(body, &request); err != nil {
		metrics.RecordSignup(metrics.SignupInvalid)
		core.WriteError(w, http.StatusBadRequest, MessageInvalidJSON)
		return
	}

	hashedPassword, err := h.hasher.Hash(request.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		metrics.RecordSignup(metrics.SignupInvalid)
		core.WriteJSON(w, http.StatusBadRequest, SignUpResponse{Response: core.Response{Message: MessagePasswordTooLong}})
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4100: cannot hash password")
		metrics.RecordSignup(metrics.SignupFailed)
		core.WriteJSON(w, http.StatusInternalServerError, SignUpResponse{Response: core.Response{Message: MessageInternalError}})
		return
	}

	newUser := &user.User{
		Username: request.Username,
		Email:    request.Email,
		Password: hashedPassword,
	}
	if err := h.users.Insert(r.Context(), newUser); err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			rlog.WithError(err).Warnln("signup for existing user")
		} else {
			rlog.WithError(err).Errorln("Error 4101: cannot save user")
		}
		metrics.RecordSignup(metrics.SignupFailed)
		core.WriteJSON(w, http.StatusInternalServerError, SignUpResponse{Response: core.Response{Message: MessageInternalError}})
		return
	}

	rlog.WithField("user_id", newUser.UserID).Infoln("user signed up")
	metrics.RecordSignup(metrics.SignupCreated)
	core.WriteJSON(w, http.StatusCreated, SignUpResponse{
		Response: core.Response{Success: true, Message: MessageSignUpSuccessful},
		User:     &PublicUser{Username: request.Username, Email: request.Email},
	})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := h.validator.ValidateBytes(body, signInSchemaID); err != nil {
		core.WriteError(w, http.StatusBadRequest, MessageFieldsRequired)
		return
	}
	var request SignInRequest
	if err := json.Unmarshal(body, &request); err != nil {
		core.WriteError(w, http.StatusBadRequest, MessageInvalidJSON)
		return
	}

	u, err := h.users.FindByEmail(r.Context(), request.Email)
	if errors.Is(err, user.ErrNotFound) {
		core.WriteError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4102: cannot read user")
		core.WriteError(w, http.StatusInternalServerError, MessageInternalError)
		return
	}

	if err := h.hasher.Compare(u.Password, request.Password); err != nil {
		if !errors.Is(err, ErrMismatch) {
			rlog.WithError(err).Errorln("Error 4103: cannot compare password")
		}
		core.WriteError(w, http.StatusBadRequest, MessageInvalidPassword)
		return
	}

	token, err := h.issuer.Issue(u.UserID, u.IsAdmin)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4104: cannot issue token")
		core.WriteError(w, http.StatusInternalServerError, MessageInternalError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     access.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.ttl()),
	})
	rlog.WithField("user_id", u.UserID).Infoln("user signed in")
	core.WriteJSON(w, http.StatusOK, UserResponse{
		Response: core.Response{Success: true, Message: MessageSignInSuccessful},
		User:     u,
		Token:    token,
	})
}

func (h *Handler) ttl() time.Duration {
	if h.issuer.TTL > 0 {
		return h.issuer.TTL
	}
	return access.DefaultTTL
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	http.SetCookie(w, &http.Cookie{
		Name:     access.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		MaxAge:   -1,
	})
	core.WriteJSON(w, http.StatusOK, core.Response{Success: true, Message: MessageSignedOut})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	auth := access.AuthorizationFromContext(r.Context())

	u, err := h.users.FindByID(r.Context(), auth.UserID)
	if errors.Is(err, user.ErrNotFound) {
		core.WriteError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4105: cannot read user")
		core.WriteError(w, http.StatusInternalServerError, MessageInternalError)
		return
	}
	core.WriteJSON(w, http.StatusOK, UserResponse{Response: core.Response{Success: true}, User: u})
}
