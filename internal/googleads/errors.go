package googleads

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// AuthError means the API rejected the access token: HTTP 401 or an
// UNAUTHENTICATED status in the body.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("googleads: authentication failed (status %d): %s", e.StatusCode, truncate(e.Body))
}

// TransientAPIError is any other non-success response. It aborts the
// current fetch only.
type TransientAPIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *TransientAPIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("googleads: API error (status %d, %s): %s", e.StatusCode, e.Status, truncate(e.Body))
	}
	return fmt.Sprintf("googleads: API error (status %d): %s", e.StatusCode, truncate(e.Body))
}

// classifyFailure maps a non-200 response to AuthError or TransientAPIError.
func classifyFailure(statusCode int, body []byte) error {
	text := string(body)
	if statusCode == http.StatusUnauthorized || strings.Contains(text, "UNAUTHENTICATED") {
		return &AuthError{StatusCode: statusCode, Body: text}
	}

	apiErr := &TransientAPIError{StatusCode: statusCode, Body: text}
	var env apiErrorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Status != "" {
		apiErr.Status = env.Error.Status
	}
	return apiErr
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
