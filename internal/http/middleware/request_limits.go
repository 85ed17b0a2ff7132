package middleware

import (
	"errors"
	"net/http"

	"github.com/tendant/simple-onboarding/internal/httputil"
)

// RequestSizeLimit creates middleware that limits the maximum request body size.
// A non-positive limit disables the check.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit request body size to prevent memory exhaustion
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// HandleMaxBytesError checks if the error is from MaxBytesReader and writes a 413.
func HandleMaxBytesError(w http.ResponseWriter, err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return true
	}
	return false
}
