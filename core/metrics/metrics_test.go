package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSignup(t *testing.T) {
	before := testutil.ToFloat64(signups.WithLabelValues(SignupCreated))
	RecordSignup(SignupCreated)
	RecordSignup(SignupCreated)
	after := testutil.ToFloat64(signups.WithLabelValues(SignupCreated))
	if after-before != 2 {
		t.Fatalf("expected 2 more created signups, got %v", after-before)
	}
}

func TestInstrumentHandler(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequests.WithLabelValues("GET", "/api/items/{id}", "418")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("Expected return status %d, got: %d", http.StatusTeapot, rec.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected one request recorded by route template, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	RecordSignup(SignupInvalid)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected return status %d, got: %d", http.StatusOK, rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `blog_auth_signups_total{result="invalid"}`) {
		t.Fatal("signup counter missing from exposition")
	}
}
