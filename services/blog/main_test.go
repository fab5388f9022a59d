package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "blog version unset\n", out)
}

func TestSignUpCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/signup" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"message":"SignUp Successful","user":{"username":"alice","email":"a@x.io"}}`))
	}))
	defer server.Close()

	out, err := execute(t, "signup", "--url", server.URL, "--username", "alice", "--email", "a@x.io", "--password", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "SignUp Successful: alice <a@x.io>, continue at /sign-in\n", out)

	_, err = execute(t, "signup", "--url", server.URL, "--username", "alice")
	require.Error(t, err)
	assert.Equal(t, "Please fill out all fields.", err.Error())
}

func TestLoadService(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"POSTGRES=host=localhost port=5432 user=postgres dbname=postgres sslmode=disable",
		"JWT_TTL=1h",
		"RATE_LIMIT=0",
	}, "\n")
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("POSTGRES")
		os.Unsetenv("JWT_TTL")
		os.Unsetenv("RATE_LIMIT")
	})

	service, err := loadService(envFile)
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=postgres dbname=postgres sslmode=disable", service.Postgres)
	assert.Equal(t, 5000, service.Port)
	assert.Equal(t, "blog", service.PostgresSchema)
	assert.Equal(t, time.Hour, service.JWTTTL)
	assert.Equal(t, 10, service.BcryptCost)
	assert.Equal(t, "*", service.CORSOrigin)
	assert.Equal(t, float64(0), service.RateLimit)
	assert.Equal(t, 10, service.RateBurst)
	assert.False(t, service.TrustProxy)
}
