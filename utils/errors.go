package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies a DomainError for propagation and HTTP mapping.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAccountNotFound    ErrorKind = "account_not_found"
	KindProviderNotFound   ErrorKind = "provider_not_found"
	KindWafChallenge       ErrorKind = "waf_challenge"
	KindSessionExpired     ErrorKind = "session_expired"
	KindInfrastructure     ErrorKind = "infrastructure"
	KindRepository         ErrorKind = "repository"
	KindDataIntegrity      ErrorKind = "data_integrity"
	KindDeserialization    ErrorKind = "deserialization"
)

// DomainError carries an error kind through the check-in pipeline so callers
// branch on the condition instead of matching error text. WafChallenge is the
// one kind that triggers automatic recovery; every other kind surfaces to the
// caller unmodified.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches two DomainErrors by kind so errors.Is works with kind sentinels.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewDomainError(kind ErrorKind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

func WrapDomainError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Err: err}
}

// ErrKind extracts the kind from any error in the chain, or "" when err is
// not a DomainError.
func ErrKind(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return ErrKind(err) == kind
}

// UserMessage renders a failure the way it should be presented: needs
// re-login vs temporary-will-retry vs configuration error.
func UserMessage(err error) string {
	switch ErrKind(err) {
	case KindSessionExpired:
		return "Session expired, please log in to the provider again"
	case KindWafChallenge:
		return "Anti-bot verification required, will retry automatically"
	case KindValidation, KindInvalidCredentials, KindProviderNotFound:
		return fmt.Sprintf("Configuration error: %v", err)
	default:
		return err.Error()
	}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithDomainError maps a DomainError kind to an HTTP status.
func RespondWithDomainError(c *gin.Context, err error) {
	kind := ErrKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case KindValidation, KindInvalidCredentials, KindDeserialization:
		status = http.StatusBadRequest
	case KindAccountNotFound, KindProviderNotFound:
		status = http.StatusNotFound
	case KindSessionExpired:
		status = http.StatusUnauthorized
	case KindWafChallenge:
		status = http.StatusBadGateway
	}
	code := string(kind)
	if code == "" {
		code = "internal_error"
	}
	RespondWithError(c, status, code, UserMessage(err), nil)
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}
