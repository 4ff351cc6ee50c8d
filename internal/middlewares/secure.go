package middlewares

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeadersMiddleware sets standard security headers on every response.
// isDevelopment disables the HTTPS-only behavior for local runs.
func SecureHeadersMiddleware(isDevelopment bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      isDevelopment,
	}).Handler
}
