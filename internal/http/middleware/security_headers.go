package middleware

import (
	"fmt"
	"net/http"

	"github.com/tendant/simple-onboarding/internal/config"
)

type header struct {
	name, value string
}

// securityHeaders returns the non-empty headers configured in cfg.
func securityHeaders(cfg config.SecurityHeadersConfig) []header {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}

	all := []header{
		{"Content-Security-Policy", cfg.CSP},
		{"Strict-Transport-Security", hsts},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	}

	set := all[:0]
	for _, h := range all {
		if h.value != "" {
			set = append(set, h)
		}
	}
	return set
}

func passthrough(next http.Handler) http.Handler { return next }

// SecurityHeaders creates middleware that applies OWASP-recommended security headers.
// Responses to non-GET requests are marked no-store.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return passthrough
	}

	headers := securityHeaders(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				w.Header().Set(h.name, h.value)
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
