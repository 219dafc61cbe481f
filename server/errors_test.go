package server

import "testing"

func TestErrorMessageMapping(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{ErrCodeInvalidState, "Security verification failed. Please try signing in again."},
		{ErrCodeMissingCode, "Authentication code missing. Please try signing in again."},
		{"access_denied", "Sign-in was cancelled."},
		{"something_new", defaultErrorMessage},
		{"", defaultErrorMessage},
	}

	for _, tt := range tests {
		if got := ErrorMessage(tt.code); got != tt.want {
			t.Fatalf("ErrorMessage(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
