package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/retry"
	queuesvc "github.com/nduplat/motorcycle-service-app-sub002/internal/services/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workqueue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

const maxBodyBytes = 1 << 20

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeStatusJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeCreatedJSON writes a 201 Created response with a JSON body.
func writeCreatedJSON(w http.ResponseWriter, data any) {
	writeStatusJSON(w, http.StatusCreated, data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// allow writes 405 and returns false unless r uses method.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// parseLimit parses a positive integer, returning 0 for empty or invalid
// input.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *queue.ValidationError
	var ite *queue.IllegalTransitionError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ite), errors.Is(err, queue.ErrSessionUnavailable),
		errors.Is(err, queue.ErrConflict), errors.Is(err, workqueue.ErrNotLeased):
		return http.StatusConflict
	case errors.Is(err, queuesvc.ErrWorkOrdersDisabled), errors.Is(err, queuesvc.ErrJournalDisabled):
		return http.StatusNotImplemented
	case retry.IsExhausted(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err to a status and logs server-side failures.
func writeServiceError(w http.ResponseWriter, logger logpkg.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		logger.Error(op+" failed", logpkg.Err(err))
		if status == http.StatusServiceUnavailable {
			writeError(w, status, "temporarily unavailable, retry later")
			return
		}
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
