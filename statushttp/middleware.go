/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package statushttp

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/acronis/go-regkit/log"
)

const headerRequestID = "X-Request-ID"

// RecoveryStackSize defines the size of stack part which will be logged.
const RecoveryStackSize = 8192

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyLogger
)

// NewContextWithRequestID creates a new context with request id.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext extracts request id from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ctxKeyRequestID).(string)
	return value
}

// NewContextWithLogger creates a new context with logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext extracts logger from the context.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	value, _ := ctx.Value(ctxKeyLogger).(log.FieldLogger)
	return value
}

// RequestID is a middleware that reads value of X-Request-ID request's HTTP header and generates new one if it's empty.
// The id is put into request's context and returned in X-Request-ID response header.
func RequestID() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = xid.New().String()
			}
			rw.Header().Set(headerRequestID, requestID)
			next.ServeHTTP(rw, r.WithContext(NewContextWithRequestID(r.Context(), requestID)))
		})
	}
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with request's id in fields) into request's context.
// Successful requests to excludedEndpoints are not logged.
func Logging(logger log.FieldLogger, excludedEndpoints []string) func(next http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(excludedEndpoints))
	for _, e := range excludedEndpoints {
		excluded[e] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			reqLogger := logger.With(
				log.String("request_id", GetRequestIDFromContext(r.Context())),
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.String("remote_addr", r.RemoteAddr),
			)
			wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(r.Context(), reqLogger)))

			status := wrw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if _, ok := excluded[r.URL.Path]; ok && status < http.StatusBadRequest {
				return
			}
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", time.Since(startTime).Seconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
				log.DurationIn(time.Since(startTime), time.Millisecond),
			)
		})
	}
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace
// and returns 500 HTTP status code.
func Recovery() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					if logger := GetLoggerFromContext(r.Context()); logger != nil {
						stack := make([]byte, RecoveryStackSize)
						stack = stack[:runtime.Stack(stack, false)]
						logger.Error(fmt.Sprintf("Panic: %+v", p), log.String("stack", string(stack)))
					}
					rw.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
