package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Error codes returned in Salesforce error bodies.
const (
	CodeRequestLimitExceeded = "REQUEST_LIMIT_EXCEEDED"
	CodeInvalidField         = "INVALID_FIELD"
	CodeInvalidType          = "INVALID_TYPE"
	CodeInvalidSession       = "INVALID_SESSION_ID"
	CodeNotFound             = "NOT_FOUND"
)

// APIError represents a Salesforce REST error response.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("salesforce: API error %d %s: %s (URL: %s)", e.StatusCode, e.ErrorCode, e.Message, e.URL)
	}
	return fmt.Sprintf("salesforce: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap maps the response onto the domain error the pipeline classifies by.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.ErrorCode == CodeRequestLimitExceeded:
		return domain.ErrRateLimited
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return domain.ErrSourceUnavailable
	case e.StatusCode == http.StatusForbidden:
		return domain.ErrForbidden
	case e.ErrorCode == CodeInvalidField:
		return domain.ErrLabelFieldMissing
	case e.StatusCode >= 500:
		return domain.ErrTransient
	case e.StatusCode >= 400:
		return domain.ErrInvalidInput
	default:
		return nil
	}
}

// errorBody is one element of the JSON array Salesforce returns on failure.
type errorBody struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields"`
}

// newAPIError builds an APIError from a failed response body.
// Bodies that are not the usual JSON array are kept as the message.
func newAPIError(status int, url string, body []byte) *APIError {
	e := &APIError{StatusCode: status, URL: url}

	var list []errorBody
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		e.ErrorCode = list[0].ErrorCode
		e.Message = list[0].Message
		return e
	}

	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRateLimited checks if the error indicates the org's API limit was hit.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.ErrorCode == CodeRequestLimitExceeded
	}
	return false
}

// IsUnauthorized checks if the error indicates an expired or invalid token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsForbidden checks if the error indicates the user lacks access.
func IsForbidden(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusForbidden && apiErr.ErrorCode != CodeRequestLimitExceeded
	}
	return false
}

// IsInvalidField checks if a query named a field the object does not have.
func IsInvalidField(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == CodeInvalidField
	}
	return false
}
