package domain

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Kind groups errors by how the boundary reacts to them.
type Kind = goerrors.Category

const (
	KindAuthInvalid         Kind = goerrors.CategoryAuth
	KindAccessDenied        Kind = goerrors.CategoryAuthz
	KindResourceNotFound    Kind = goerrors.CategoryNotFound
	KindUpstreamUnavailable Kind = goerrors.CategoryExternal
	KindRateLimited         Kind = goerrors.CategoryRateLimit
	KindInvalidRequest      Kind = goerrors.CategoryBadInput
)

// Text codes carried on errors and rendered as the "error" field of
// responses.
const (
	CodeTokenInvalid        = "token_invalid"
	CodeTokenExpired        = "token_expired"
	CodeTokenRevoked        = "token_revoked"
	CodeRefreshInvalid      = "refresh_invalid"
	CodeAccessDenied        = "access_denied"
	CodeResourceNotFound    = "resource_not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeRateLimited         = "rate_limit_exceeded"
	CodeInvalidRequest      = "invalid_request"
	CodeInternal            = "internal_error"
)

func newError(kind Kind, status int, code, msg string) *goerrors.Error {
	return goerrors.New(msg, kind).WithCode(status).WithTextCode(code)
}

// ErrTokenInvalid and friends are the AuthInvalid reasons.
func ErrTokenInvalid() error {
	return newError(KindAuthInvalid, http.StatusUnauthorized, CodeTokenInvalid, "invalid access token")
}

func ErrTokenExpired() error {
	return newError(KindAuthInvalid, http.StatusUnauthorized, CodeTokenExpired, "access token expired")
}

func ErrTokenRevoked() error {
	return newError(KindAuthInvalid, http.StatusUnauthorized, CodeTokenRevoked, "access token revoked")
}

// ErrRefreshInvalid covers both unknown and expired refresh tokens. Once an
// expired entry is evicted the two are indistinguishable, so they share a code.
func ErrRefreshInvalid() error {
	return newError(KindAuthInvalid, http.StatusUnauthorized, CodeRefreshInvalid, "invalid or expired refresh token")
}

func ErrAccessDenied(resourceID string) error {
	return newError(KindAccessDenied, http.StatusForbidden, CodeAccessDenied, "access denied").
		WithMetadata(map[string]any{"resource_id": resourceID})
}

func ErrResourceNotFound(resource string) error {
	return newError(KindResourceNotFound, http.StatusNotFound, CodeResourceNotFound, resource+" not found")
}

// ErrUpstreamUnavailable wraps the transport or breaker failure that caused it.
func ErrUpstreamUnavailable(dependency string, cause error) error {
	msg := "service unavailable"
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(msg, KindUpstreamUnavailable)
	} else {
		err = goerrors.Wrap(cause, KindUpstreamUnavailable, msg)
	}
	return err.WithCode(http.StatusBadGateway).
		WithTextCode(CodeUpstreamUnavailable).
		WithMetadata(map[string]any{"dependency": dependency})
}

func ErrInvalidRequest(msg string) error {
	return newError(KindInvalidRequest, http.StatusBadRequest, CodeInvalidRequest, msg)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == kind
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}

// Describe returns the status, text code and message to render for err.
// Anything that is not one of ours is an internal error and its message is
// not leaked.
func Describe(err error) (status int, code, msg string) {
	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich.Code == 0 {
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
	return rich.Code, rich.TextCode, rich.Message
}
