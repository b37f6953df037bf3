package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureOptions are the response hardening headers for a JSON and binary API.
func SecureOptions(isDevelopment bool) secure.Options {
	return secure.Options{
		IsDevelopment:         isDevelopment,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; img-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

func NewSecure(opts secure.Options) func(next http.Handler) http.Handler {
	return secure.New(opts).Handler
}
