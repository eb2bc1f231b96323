// Package handlers provides the HTTP handlers for the arca REST API.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/storage"
)

// Error is the JSON body returned on every failed request.
type Error struct {
	// Status repeats the HTTP status code.
	Status int `json:"status"`

	// Message is a short human-readable explanation. It never contains
	// internal paths or stack traces.
	Message string `json:"message"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Error{Status: status, Message: message})
}

// Common error helper functions for standard HTTP statuses.

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

// Forbidden writes a 403 Forbidden error response.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

// RangeNotSatisfiable writes a 416 error response with the Content-Range
// header required by RFC 9110 for unsatisfiable byte ranges.
func RangeNotSatisfiable(w http.ResponseWriter, size int64) {
	w.Header().Set("Content-Range", contentRangeUnsatisfied(size))
	WriteError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an error response can still be
// produced if encoding fails (before headers are sent).
func WriteJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		InternalServerError(w, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSONBody decodes a JSON request body into v, answering 400 itself
// on malformed input. Returns false when the response has been written.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// WriteDomainError maps an engine or storage error to its HTTP status and
// writes the JSON error body. The sentinel messages double as response
// messages; wrapped context added by the engine is preserved.
//
// Denied authorization is written as 404 when hideDenied is set so probing
// cannot distinguish "absent" from "forbidden"; otherwise anonymous callers
// get 401 and authenticated ones 403.
func WriteDomainError(w http.ResponseWriter, principal auth.Principal, hideDenied bool, err error) {
	switch {
	case errors.Is(err, auth.ErrPermissionDenied):
		switch {
		case hideDenied:
			NotFound(w, "not found")
		case principal.IsAnonymous():
			Unauthorized(w, "authentication required")
		default:
			Forbidden(w, "permission denied")
		}

	case errors.Is(err, models.ErrBucketNotFound),
		errors.Is(err, models.ErrBucketDeleted),
		errors.Is(err, models.ErrObjectNotFound),
		errors.Is(err, models.ErrVersionNotFound),
		errors.Is(err, models.ErrFileNotFound),
		errors.Is(err, models.ErrUploadNotFound),
		errors.Is(err, models.ErrLocationNotFound),
		errors.Is(err, storage.ErrBlobNotFound):
		NotFound(w, err.Error())

	case errors.Is(err, models.ErrBucketLocked):
		Forbidden(w, err.Error())

	case errors.Is(err, models.ErrInvalidOperation),
		errors.Is(err, models.ErrInvalidKey),
		errors.Is(err, models.ErrInvalidStorageClass),
		errors.Is(err, models.ErrInvalidLocation),
		errors.Is(err, models.ErrNoDefaultLocation),
		errors.Is(err, models.ErrFileSize),
		errors.Is(err, models.ErrUnexpectedFileSize),
		errors.Is(err, models.ErrChecksumMismatch),
		errors.Is(err, models.ErrFileNotWritable),
		errors.Is(err, models.ErrMultipartInvalidChunkSize),
		errors.Is(err, models.ErrMultipartInvalidPartNumber),
		errors.Is(err, models.ErrMultipartInvalidSize),
		errors.Is(err, models.ErrMultipartMissingParts),
		errors.Is(err, models.ErrMultipartNotCompleted),
		errors.Is(err, storage.ErrSizeLimitExceeded),
		errors.Is(err, storage.ErrSizeMismatch):
		BadRequest(w, err.Error())

	case errors.Is(err, models.ErrFileInstanceAlreadySet),
		errors.Is(err, models.ErrMultipartAlreadyCompleted),
		errors.Is(err, models.ErrDuplicateLocation),
		errors.Is(err, models.ErrStaleUpdate),
		errors.Is(err, models.ErrFileInUse):
		Conflict(w, err.Error())

	case errors.Is(err, storage.ErrInvalidRange):
		WriteError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")

	default:
		// Storage failures wrap backend URIs; never echo those.
		logger.Error("Request failed", "error", err)
		InternalServerError(w, "internal server error")
	}
}
