package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/wolfeidau/loadboard/internal/http"
)

// Setup builds the root logger and installs it as the global logger used by
// package code.
func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	log.Logger = logger

	return logger
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// Requests returns middleware that attaches a request scoped logger to the
// context and logs each completed request.
func Requests(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			reqID := requestID(r)
			w.Header().Set(RequestIDHeader, reqID)

			ctx := logger.With().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("addr", clientAddr(r)).
				Logger().WithContext(r.Context())

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			ev := zerolog.Ctx(ctx).Info()
			if rec.status >= http.StatusInternalServerError {
				ev = zerolog.Ctx(ctx).Error()
			}

			ev.Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}

// requestID reuses an upstream id so log lines can be joined across hops.
func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}

// clientAddr prefers the address resolved by the client IP middleware.
func clientAddr(r *http.Request) string {
	if ip := httpmiddleware.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
