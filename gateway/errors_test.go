package gateway_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-ticket-client/gateway"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *gateway.APIError
		want string
	}{
		{"parsed message wins", &gateway.APIError{StatusCode: 400, Parsed: &gateway.ErrorResponse{Message: "title is required"}}, "title is required"},
		{"400 default", &gateway.APIError{StatusCode: 400}, "Invalid request. Please check your input and try again."},
		{"401 default", &gateway.APIError{StatusCode: 401}, "Authentication required. Please log in."},
		{"403 default", &gateway.APIError{StatusCode: 403}, "You do not have permission to perform this action."},
		{"404 default", &gateway.APIError{StatusCode: 404}, "The requested resource was not found."},
		{"422 default", &gateway.APIError{StatusCode: 422}, "Validation failed. Please check your input."},
		{"500 default", &gateway.APIError{StatusCode: 500}, "An internal server error occurred. Please try again later."},
		{"transport error", &gateway.APIError{Err: errors.New("connection refused")}, "connection refused"},
		{"unknown status", &gateway.APIError{StatusCode: 418}, "An unexpected error occurred."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Message())
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("load ticket: %w", &gateway.APIError{StatusCode: http.StatusForbidden})

	require.True(t, gateway.IsAuthError(wrapped))
	require.False(t, gateway.IsServerError(wrapped))
	require.True(t, gateway.IsServerError(&gateway.APIError{StatusCode: 503}))
	require.False(t, gateway.IsAuthError(errors.New("plain")))

	require.Equal(t, "", gateway.ErrorMessage(nil))
	require.Equal(t, "plain", gateway.ErrorMessage(errors.New("plain")))
	require.Equal(t, "You do not have permission to perform this action.", gateway.ErrorMessage(wrapped))
}

func TestValidationErrors(t *testing.T) {
	err := &gateway.APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Parsed:     &gateway.ErrorResponse{ValidationErrors: map[string]string{"title": "must not be blank"}},
	}
	require.Equal(t, map[string]string{"title": "must not be blank"}, gateway.ValidationErrors(err))

	err.Parsed.Errors = map[string]string{"priority": "invalid"}
	require.Equal(t, map[string]string{"priority": "invalid"}, gateway.ValidationErrors(err))

	require.Nil(t, gateway.ValidationErrors(&gateway.APIError{StatusCode: 400}))
}
