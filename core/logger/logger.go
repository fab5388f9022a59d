// Package logger provides request scoped logrus loggers.
//
// Every request gets its own *logrus.Entry carrying a request ID, which handlers
// retrieve with FromContext.
package logger

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader is the header the request ID is read from and returned in
const RequestIDHeader = "X-Request-ID"

// Type for the context keys
type contextKeyRequestLoggerType struct{}

var contextKeyRequestLogger = &contextKeyRequestLoggerType{}

const (
	requestIDLoggerKey string = "requestID"
	identityLoggerKey  string = "identity"
)

// InitLogger sets up the custom time formatter for all log statements.
func InitLogger(logLevel logrus.Level) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(logLevel)
}

// ParseLevel parses a level name like "debug" or "warning". Unknown names fall back
// to info.
func ParseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("unknown log level '%s', using info", level)
		return logrus.InfoLevel
	}
	return l
}

// AddRequestID adds a logger with a request ID to every request context. An ID sent
// by the client in the X-Request-ID header is reused, otherwise a new one is generated.
// The ID is echoed in the response header.
func AddRequestID(router *mux.Router) {
	router.Use(RequestID)
}

// RequestID is the middleware installed by AddRequestID
func RequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, rlog := ContextWithRequestID(r.Context(), r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, rlog.Data[requestIDLoggerKey].(string))
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Default returns a logger without a request ID.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ContextWithLogger returns a new context with a logger if the given context has no logger yet. If
// the context already has a logger the given context will be returned.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	return ContextWithRequestID(ctx, "")
}

// ContextWithRequestID works like ContextWithLogger but uses requestID for a new logger,
// unless it is empty.
func ContextWithRequestID(ctx context.Context, requestID string) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog := loggerFromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	rlog := logrus.WithField(requestIDLoggerKey, requestID)
	return context.WithValue(ctx, contextKeyRequestLogger, rlog), rlog
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	rlog, ok := ctx.Value(contextKeyRequestLogger).(*logrus.Entry)
	if !ok {
		return nil
	}
	return rlog
}

// FromContext returns the logger from the context. If the context does not have a logger
// the default logger is returned.
func FromContext(ctx context.Context) *logrus.Entry {
	if rlog := loggerFromContext(ctx); rlog != nil {
		return rlog
	}
	return Default()
}

// ContextWithLoggerIdentity returns a new context with a logger and identity.
func ContextWithLoggerIdentity(ctx context.Context, identity string) (context.Context, *logrus.Entry) {
	ctx, rlog := ContextWithLogger(ctx)
	rlog = rlog.WithField(identityLoggerKey, identity)
	return context.WithValue(ctx, contextKeyRequestLogger, rlog), rlog
}

// RequestIDFromContext returns the request id for the given context, or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	rlog := loggerFromContext(ctx)
	if rlog == nil {
		return ""
	}
	s, _ := rlog.Data[requestIDLoggerKey].(string)
	return s
}
