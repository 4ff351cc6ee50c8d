package middlewares

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
)

// MsgTooManyRequests is returned when a client exceeds the signup rate limit.
const MsgTooManyRequests = "Too many signup attempts, please try again later"

// RateLimitMiddleware limits requests per client IP within window.
// A non-positive limit disables limiting.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Log.Warnw("rate limit exceeded", "remote_addr", r.RemoteAddr, "uri", r.RequestURI)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: MsgTooManyRequests})
		}),
	)
}
