package server

// Error codes surfaced to the browser through the error query parameter.
// Provider-originated codes (e.g. access_denied) pass through unchanged.
const (
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeTokenExchange       = "token_exchange_error"
	ErrCodeUserFetch           = "user_fetch_error"
	ErrCodeMissingCode         = "missing_code"
	ErrCodeMissingCodeVerifier = "missing_code_verifier"
	ErrCodeAuthentication      = "authentication_error"
)

var errorMessages = map[string]string{
	ErrCodeInvalidState:        "Security verification failed. Please try signing in again.",
	ErrCodeTokenExchange:       "Could not complete the authentication with X. Please try again.",
	ErrCodeUserFetch:           "Could not fetch your profile information. Please try again.",
	ErrCodeMissingCode:         "Authentication code missing. Please try signing in again.",
	ErrCodeMissingCodeVerifier: "Sign-in session incomplete. Please try signing in again.",
	ErrCodeAuthentication:      "An error occurred during authentication. Please try again.",
	"access_denied":            "Sign-in was cancelled.",
}

const defaultErrorMessage = "An unknown error occurred. Please try again."

// ErrorMessage maps an error code to user-facing copy. Unknown codes fall
// back to a generic message; raw provider bodies never reach the browser.
func ErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return defaultErrorMessage
}
