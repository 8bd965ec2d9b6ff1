package response

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope of every notification API reply except the list,
// whose {"items": [...]} shape is consumed by the realtime client as is.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// JSON writes payload without the envelope
func JSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	JSON(w, statusCode, Response{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	JSON(w, statusCode, Response{
		Success: false,
		Error:   &ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func Success(w http.ResponseWriter, data interface{}) {
	ok(w, http.StatusOK, "", data)
}

func SuccessWithMessage(w http.ResponseWriter, message string, data interface{}) {
	ok(w, http.StatusOK, message, data)
}

// Created replies 201, used for issued development tokens
func Created(w http.ResponseWriter, message string, data interface{}) {
	ok(w, http.StatusCreated, message, data)
}

// Accepted replies 202 once a notification is queued for delivery
func Accepted(w http.ResponseWriter, message string) {
	ok(w, http.StatusAccepted, message, nil)
}

func BadRequest(w http.ResponseWriter, message string, details map[string]string) {
	fail(w, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func ValidationError(w http.ResponseWriter, details map[string]string) {
	fail(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details)
}

func Unauthorized(w http.ResponseWriter, message string) {
	fail(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func Forbidden(w http.ResponseWriter, message string) {
	fail(w, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	fail(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// ServiceUnavailable is returned while the delivery queue is full
func ServiceUnavailable(w http.ResponseWriter, message string) {
	fail(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

func InternalServerError(w http.ResponseWriter, message string) {
	fail(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, nil)
}
