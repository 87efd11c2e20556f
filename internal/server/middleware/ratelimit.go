package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// LoginRateLimit returns an HTTP middleware that limits login attempts per
// client IP to the specified number per minute. This caps online guessing
// across many usernames; the per-account lockout in the engine handles
// guessing against a single account.
func LoginRateLimit(attemptsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(attemptsPerMinute, time.Minute)
}
