package gatewaysdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the gateway.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeTokenInvalid        = "token_invalid"
	ErrorCodeTokenExpired        = "token_expired"
	ErrorCodeTokenRevoked        = "token_revoked"
	ErrorCodeRefreshInvalid      = "refresh_invalid"
	ErrorCodeAccessDenied        = "access_denied"
	ErrorCodeResourceNotFound    = "resource_not_found"
	ErrorCodeUpstreamUnavailable = "upstream_unavailable"
	ErrorCodeRateLimited         = "rate_limit_exceeded"
	ErrorCodeInternal            = "internal_error"
)

// APIError is a non-success response from the gateway.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("gatewaysdk: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("gatewaysdk: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Code returns the gateway error code carried by err, or "".
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsUnauthorized reports whether the credential was rejected.
func IsUnauthorized(err error) bool {
	switch Code(err) {
	case ErrorCodeTokenInvalid, ErrorCodeTokenExpired, ErrorCodeTokenRevoked, ErrorCodeRefreshInvalid:
		return true
	}
	return false
}

// IsAccessDenied reports whether the principal does not own the resource.
func IsAccessDenied(err error) bool { return Code(err) == ErrorCodeAccessDenied }

// IsNotFound reports whether the provider has no such resource.
func IsNotFound(err error) bool { return Code(err) == ErrorCodeResourceNotFound }

// IsUnavailable reports whether the provider could not be reached or the
// gateway is failing fast.
func IsUnavailable(err error) bool { return Code(err) == ErrorCodeUpstreamUnavailable }

// parseErrorResponse turns a failed response into an *APIError. Bodies that
// are not in the gateway's error shape keep only the status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Description = ""
	}
	return apiErr
}
