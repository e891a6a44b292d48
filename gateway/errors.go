package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const defaultErrorMessage = "An unexpected error occurred."

// ErrorResponse is the backend's error payload
type ErrorResponse struct {
	Timestamp        string            `json:"timestamp,omitempty"`
	Status           int               `json:"status,omitempty"`
	Error            string            `json:"error,omitempty"`
	Message          string            `json:"message,omitempty"`
	Path             string            `json:"path,omitempty"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
	Errors           map[string]string `json:"errors,omitempty"`
}

// APIError is returned for every failed call. StatusCode is 0 when no
// response was received, in which case Err holds the transport error.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Parsed     *ErrorResponse
	Err        error

	body string
}

func newAPIError(req *Request, resp *Response) *APIError {
	e := &APIError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		body:       strings.TrimSpace(string(resp.Body)),
	}
	var parsed ErrorResponse
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &parsed) == nil {
		e.Parsed = &parsed
	}
	return e
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message())
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Message returns the server supplied message, or a default keyed on the status
func (e *APIError) Message() string {
	if e.Parsed != nil && e.Parsed.Message != "" {
		return e.Parsed.Message
	}

	switch e.StatusCode {
	case http.StatusBadRequest:
		return "Invalid request. Please check your input and try again."
	case http.StatusUnauthorized:
		return "Authentication required. Please log in."
	case http.StatusForbidden:
		return "You do not have permission to perform this action."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusUnprocessableEntity:
		return "Validation failed. Please check your input."
	case http.StatusInternalServerError:
		return "An internal server error occurred. Please try again later."
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return defaultErrorMessage
}

// ErrorMessage extracts a human readable message from any error
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// ValidationErrors returns the field errors of a 422 response, or nil
func ValidationErrors(err error) map[string]string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Parsed == nil {
		return nil
	}
	if len(apiErr.Parsed.Errors) > 0 {
		return apiErr.Parsed.Errors
	}
	if len(apiErr.Parsed.ValidationErrors) > 0 {
		return apiErr.Parsed.ValidationErrors
	}
	return nil
}

// IsAuthError reports 401 and 403 responses
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsServerError reports 5xx responses and calls that never got a response
func IsServerError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError
}

// isUserNotFound matches the backend's "user ... not found" rejections
func isUserNotFound(e *APIError) bool {
	if e.StatusCode != http.StatusBadRequest && e.StatusCode != http.StatusNotFound {
		return false
	}
	text := e.body
	if e.Parsed != nil {
		text = e.Parsed.Message + " " + e.Parsed.Error
	}
	text = strings.ToLower(text)
	return strings.Contains(text, "user") && strings.Contains(text, "not found")
}

// severity picks the log level for a failed response. It has no effect on control flow.
func severity(status int) zerolog.Level {
	switch {
	case status == 0:
		return zerolog.ErrorLevel
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func (c *Client) logAPIError(e *APIError) {
	c.metrics.IncAPIError(strconv.Itoa(e.StatusCode))
	c.logger.WithLevel(severity(e.StatusCode)).
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.StatusCode).
		Msg(e.Message())
}
