// Package handler provides the HTTP API of the library.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxBodySize caps request bodies when no limit is configured.
const DefaultMaxBodySize = 1 << 20

// errEmptyBody is returned by decodeJSON when the request has no body.
var errEmptyBody = domain.NewDomainError(domain.ErrValidation, "request body is empty", "")

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusByKind maps domain error kinds to HTTP status codes.
var statusByKind = map[string]int{
	"validation":          http.StatusBadRequest,
	"invalid_credentials": http.StatusUnauthorized,
	"access_denied":       http.StatusForbidden,
	"not_found":           http.StatusNotFound,
	"book_unavailable":    http.StatusConflict,
	"already_returned":    http.StatusConflict,
	"has_active_loans":    http.StatusConflict,
	"duplicate_isbn":      http.StatusConflict,
	"user_exists":         http.StatusConflict,
	"inactive_entity":     http.StatusUnprocessableEntity,
	"invalid_date_range":  http.StatusUnprocessableEntity,
	"invalid_copy_count":  http.StatusUnprocessableEntity,
	"resource_busy":       http.StatusServiceUnavailable,
	"persistence_failure": http.StatusInternalServerError,
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err into a status code and error body.
// Internal failures are logged and their details withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	kind := domain.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "the operation could not be completed, nothing was changed"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return domain.NewDomainError(domain.ErrValidation, "request body too large", "")
		case errors.Is(err, io.EOF):
			return errEmptyBody
		default:
			return domain.NewDomainError(domain.ErrValidation, "malformed JSON: "+err.Error(), "")
		}
	}
	return nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewDomainError(domain.ErrValidation, "invalid id", raw)
	}
	return id, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*domain.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrValidation, err.Error(), name)
	}
	return &d, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewDomainError(domain.ErrValidation, "expected true or false", name)
	}
	return v, nil
}
