package helen

import (
	"fmt"
	"strings"
)

// AuthError represents an authentication failure
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// InvalidSiteError reports a delivery site id the account does not have.
// The message lists the valid alternatives so the user can fix the config.
type InvalidSiteError struct {
	Requested string
	Valid     []string
}

func (e *InvalidSiteError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("unknown delivery site %q (account has no delivery sites)", e.Requested)
	}
	return fmt.Sprintf("unknown delivery site %q (valid delivery sites: %s)", e.Requested, strings.Join(e.Valid, ", "))
}

// APIError represents a non-2xx response from the Helen API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}
