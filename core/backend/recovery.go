package backend

import (
	"net/http"
	"runtime/debug"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/logger"
)

// handleRecovery turns panics in handlers into the error envelope, and answers unknown
// routes and methods with it as well
func (b *Backend) handleRecovery() {
	recoveryMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.FromContext(r.Context()).WithField("panic", rec).
						Errorf("Error 4001: recovered from panic in %s %s\n%s", r.Method, r.URL.Path, debug.Stack())
					core.WriteError(w, http.StatusInternalServerError, core.DefaultErrorMessage)
				}
			}()
			h.ServeHTTP(w, r)
		})
	}
	b.router.Use(recoveryMiddleware)

	// mux skips router middleware for these two, so they get request ID and CORS here
	b.router.NotFoundHandler = logger.RequestID(b.cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Debugln("no route for", r.URL, r.Method)
		core.WriteError(w, http.StatusNotFound, "Not Found")
	})))
	b.router.MethodNotAllowedHandler = logger.RequestID(b.cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Debugln("method not allowed for", r.URL, r.Method)
		core.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})))
}
