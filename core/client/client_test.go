package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/access"
)

// cannedRouter answers signup with the given status and body and counts the calls
func cannedRouter(status int, body string, calls *int) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}).Methods(http.MethodPost)
	return router
}

func TestSignUp(t *testing.T) {
	var received SignUpForm
	router := mux.NewRouter()
	router.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		if err := decodeJSONBody(r, &received); err != nil {
			t.Fatal(err)
		}
		core.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "SignUp Successful",
			"user":    map[string]string{"username": received.Username, "email": received.Email},
		})
	}).Methods(http.MethodPost)

	result, err := NewWithRouter(router).SignUp(context.Background(), SignUpForm{
		Username: "  alice ",
		Email:    "alice@example.com\n",
		Password: " pw1 ",
	})
	require.NoError(t, err)
	assert.Equal(t, SignUpForm{Username: "alice", Email: "alice@example.com", Password: "pw1"}, received)
	assert.Equal(t, "/sign-in", result.Next)
	assert.Equal(t, "SignUp Successful", result.Message)
	assert.Equal(t, "alice", result.Username)
}

func TestSignUpErrors(t *testing.T) {
	testCases := []struct {
		name            string
		form            SignUpForm
		status          int
		body            string
		expectedStatus  int
		expectedMessage string
		expectedCalls   int
	}{
		{
			name:            "blank field is not sent",
			form:            SignUpForm{Username: "bob", Email: "   ", Password: "x"},
			expectedMessage: "Please fill out all fields.",
		},
		{
			name:            "server message",
			form:            SignUpForm{Username: "bob", Email: "b@x.io", Password: "x"},
			status:          http.StatusBadRequest,
			body:            `{"success":false,"message":"All fields are required"}`,
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "All fields are required",
			expectedCalls:   1,
		},
		{
			name:            "server error without message",
			form:            SignUpForm{Username: "bob", Email: "b@x.io", Password: "x"},
			status:          http.StatusInternalServerError,
			body:            `{}`,
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: "An error occurred",
			expectedCalls:   1,
		},
		{
			name:            "success false",
			form:            SignUpForm{Username: "bob", Email: "b@x.io", Password: "x"},
			status:          http.StatusOK,
			body:            `{"success":false,"message":"Username taken"}`,
			expectedStatus:  http.StatusOK,
			expectedMessage: "Username taken",
			expectedCalls:   1,
		},
		{
			name:            "created without success",
			form:            SignUpForm{Username: "bob", Email: "b@x.io", Password: "x"},
			status:          http.StatusCreated,
			body:            `{"user":{"username":"bob","email":"b@x.io"}}`,
			expectedStatus:  http.StatusCreated,
			expectedMessage: "An error occurred",
			expectedCalls:   1,
		},
		{
			name:            "undecodable body",
			form:            SignUpForm{Username: "bob", Email: "b@x.io", Password: "x"},
			status:          http.StatusBadGateway,
			body:            `<html>bad gateway</html>`,
			expectedStatus:  http.StatusBadGateway,
			expectedMessage: "An unexpected error occurred. Please try again.",
			expectedCalls:   1,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			c := NewWithRouter(cannedRouter(tc.status, tc.body, &calls))
			_, err := c.SignUp(context.Background(), tc.form)
			var clientErr *Error
			require.True(t, errors.As(err, &clientErr), "expected *Error, got %v", err)
			assert.Equal(t, tc.expectedStatus, clientErr.Status)
			assert.Equal(t, tc.expectedMessage, clientErr.Message)
			assert.Equal(t, tc.expectedCalls, calls)
		})
	}
}

func TestSignUpTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewWithURL(url).SignUp(context.Background(), SignUpForm{Username: "a", Email: "b", Password: "c"})
	var clientErr *Error
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, MessageUnexpected, clientErr.Message)
	assert.NotNil(t, clientErr.Unwrap())
}

func TestSignInKeepsToken(t *testing.T) {
	issuer := &access.Issuer{Secret: []byte("secret")}
	id := uuid.New()
	token, err := issuer.Issue(id, false)
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(access.NewJwtMiddleware(issuer))
	router.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		core.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "SignIn Successful",
			"user":    map[string]string{"user_id": id.String(), "username": "erin"},
			"token":   token,
		})
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/user/me", func(w http.ResponseWriter, r *http.Request) {
		auth := access.AuthorizationFromContext(r.Context())
		if auth == nil {
			core.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		core.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user":    map[string]string{"user_id": auth.UserID.String(), "username": "erin"},
		})
	}).Methods(http.MethodGet)

	c := NewWithRouter(router)
	_, err = c.Me(context.Background())
	require.Error(t, err, "not signed in yet")

	_, err = c.SignIn(context.Background(), SignInForm{Email: " ", Password: "x"})
	var clientErr *Error
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, MessageFillAllFields, clientErr.Message)

	u, err := c.SignIn(context.Background(), SignInForm{Email: "e@x.io", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "erin", u.Username)
	assert.Equal(t, token, c.Token())

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, me.UserID)
}

func TestRawGetWithAuthorization(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		if !access.AuthorizationFromContext(r.Context()).HasRole(access.RoleAdmin) {
			core.WriteError(w, http.StatusForbidden, "Forbidden")
			return
		}
		core.WriteJSON(w, http.StatusOK, map[string]string{"hello": "admin"})
	})

	var result map[string]string
	status, err := NewWithRouter(router).RawGet("/admin", &result)
	assert.Error(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	status, err = NewWithRouter(router).WithAdminAuthorization().RawGet("/admin", &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", result["hello"])
}

func decodeJSONBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
