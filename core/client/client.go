// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast access to the blog REST api

A client created with NewWithRouter talks directly to the mux router instead of marshalling
HTTP, which makes it the tool of choice for unit tests. A client created with NewWithURL
talks to a running server.

SignUp and SignIn behave like the forms of the web application: input is trimmed and checked
for completeness before anything is sent, and every failure is reported as *Error carrying
the message the form would show.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core/access"
	"github.com/relabs-tech/blog/core/user"
)

// Messages shown by the forms
const (
	MessageFillAllFields = "Please fill out all fields."
	MessageErrorOccurred = "An error occurred"
	MessageUnexpected    = "An unexpected error occurred. Please try again."
)

// SignUpNext is the page the signup form continues with after a successful signup
const SignUpNext = "/sign-in"

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context
}

// Error is the error returned by the form operations. Status is the HTTP status of the
// response, or 0 if the request was never answered.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router: router,
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithToken returns a new client which sends token as bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// Token returns the access token of the client, as set by WithToken or SignIn
func (c Client) Token() string {
	return c.token
}

// WithAdminAuthorization returns a new client with admin authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAdminAuthorization() Client {
	return c.WithAuthorization(&access.Authorization{Roles: []string{access.RoleUser, access.RoleAdmin}})
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = access.ContextWithAuthorization(ctx, c.auth)
	}
	return ctx
}

// do sends the request and returns status, header and body of the response
func (c Client) do(method, path string, headers map[string]string, body []byte) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		return 0, nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, res.Header, nil, err
	}
	return res.StatusCode, res.Header, resBody, nil
}

func decodeResult(resBody []byte, result interface{}) error {
	if len(resBody) == 0 || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.RawGetWithHeader(path, nil, result)
	return status, err
}

// RawGetWithHeader gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code and the header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	status, resHeader, resBody, err := c.do(http.MethodGet, path, header, nil)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return status, resHeader, nil
	}
	if status != http.StatusOK {
		return status, resHeader, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, resHeader, decodeResult(resBody, result)
}

// RawPost posts a resource to path. Expects http.StatusCreated or http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}

	status, _, resBody, err := c.do(http.MethodPost, path, nil, j)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusCreated, strings.TrimSpace(string(resBody)))
	}
	return status, decodeResult(resBody, result)
}

// SignUpForm holds the values of the signup form
type SignUpForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpResult is the outcome of a successful signup
type SignUpResult struct {
	Message  string
	Username string
	Email    string
	// Next is the page to continue with
	Next string
}

// formResponse is what the server answers to form posts
type formResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	User    *user.User `json:"user"`
	Token   string     `json:"token"`
}

// postForm posts a form and maps every failure to *Error
func (c Client) postForm(ctx context.Context, path string, form interface{}) (*formResponse, error) {
	body, err := json.Marshal(form)
	if err != nil {
		return nil, &Error{Message: MessageUnexpected, Err: err}
	}
	status, _, resBody, err := c.WithContext(ctx).do(http.MethodPost, path, nil, body)
	if err != nil {
		return nil, &Error{Status: status, Message: MessageUnexpected, Err: err}
	}
	var response formResponse
	if err := json.Unmarshal(resBody, &response); err != nil {
		return nil, &Error{Status: status, Message: MessageUnexpected, Err: err}
	}
	// a 2xx answer counts only with success set
	if status < 200 || status > 299 || !response.Success {
		message := response.Message
		if message == "" {
			message = MessageErrorOccurred
		}
		return nil, &Error{Status: status, Message: message}
	}
	return &response, nil
}

// SignUp submits the signup form. All values are trimmed and must not be empty.
func (c Client) SignUp(ctx context.Context, form SignUpForm) (*SignUpResult, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)
	form.Password = strings.TrimSpace(form.Password)
	if form.Username == "" || form.Email == "" || form.Password == "" {
		return nil, &Error{Message: MessageFillAllFields}
	}

	response, err := c.postForm(ctx, "/api/auth/signup", form)
	if err != nil {
		return nil, err
	}
	result := &SignUpResult{Message: response.Message, Next: SignUpNext}
	if response.User != nil {
		result.Username = response.User.Username
		result.Email = response.User.Email
	}
	return result, nil
}

// SignInForm holds the values of the signin form
type SignInForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn submits the signin form. On success the client keeps the access token and
// sends it with all subsequent requests.
func (c *Client) SignIn(ctx context.Context, form SignInForm) (*user.User, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Password = strings.TrimSpace(form.Password)
	if form.Email == "" || form.Password == "" {
		return nil, &Error{Message: MessageFillAllFields}
	}

	response, err := c.postForm(ctx, "/api/auth/signin", form)
	if err != nil {
		return nil, err
	}
	c.token = response.Token
	return response.User, nil
}

// Me returns the signed in user
func (c Client) Me(ctx context.Context) (*user.User, error) {
	var response formResponse
	status, err := c.WithContext(ctx).RawGet("/api/user/me", &response)
	if err != nil {
		return nil, &Error{Status: status, Message: MessageErrorOccurred, Err: err}
	}
	if response.User == nil {
		return nil, &Error{Status: status, Message: MessageUnexpected}
	}
	return response.User, nil
}
