package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// handlerFunc is an HTTP handler whose failures are rendered by handle.
type handlerFunc func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error

type errorBody struct {
	Code    apperr.Code       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// handle resolves the caller identity, runs fn and renders any error. The
// request duration is recorded against the matched route pattern.
func handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		code := "ok"

		id := auth.IdentityFromContext(r.Context())
		var err error
		if id == nil {
			err = apperr.Unauthenticated("no identity on request")
		} else {
			err = fn(w, r, id)
		}
		if err != nil {
			code = string(writeError(w, r, err))
		}

		telemetry.GetMetrics().RequestDuration.Record(r.Context(),
			float64(time.Since(started).Milliseconds()),
			metric.WithAttributes(
				attribute.String("route", r.Pattern),
				attribute.String("code", code),
			))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// writeError renders err as an error envelope. Detail is logged, never
// written to the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) apperr.Code {
	appErr := apperr.As(err)
	status := appErr.HTTPStatus()

	ev := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).
		Str("code", string(appErr.Code)).
		Str("detail", appErr.Detail).
		Msg("request failed")

	if appErr.Code == apperr.CodeForbidden {
		telemetry.GetMetrics().AuthzDeniedTotal.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("route", r.Pattern)))
	}

	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	}})
	return appErr.Code
}

// decode reads a JSON request body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.ValidationFailed("request body too large", map[string]string{
				"body": fmt.Sprintf("must not exceed %d bytes", maxErr.Limit),
			})
		}
		return apperr.ValidationFailed("invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// pathID parses a uuid path parameter.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	v, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.ValidationFailed("invalid path", map[string]string{name: "must be a uuid"})
	}
	return v, nil
}

// pathIDs parses several uuid path parameters in order.
func pathIDs(r *http.Request, names ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		v, err := pathID(r, name)
		if err != nil {
			return nil, err
		}
		ids[i] = v
	}
	return ids, nil
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. A date used
// as an upper bound covers the whole day.
func queryTime(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, apperr.ValidationFailed("invalid query", map[string]string{name: "must be an RFC 3339 timestamp or a date"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.ValidationFailed("invalid query", map[string]string{name: "must be an integer"})
	}
	return n, nil
}
