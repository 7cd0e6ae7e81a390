// Package shield provides the HTTP middleware placed in front of the
// extraction API: security headers, CORS, request tracing, per-IP rate
// limiting, API key checks and upload body caps.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.StackConfig{
//	    MaxBodyBytes: 50 << 20,
//	    CORSOrigins:  []string{"*"},
//	    RateLimit:    shield.RateLimitConfig{MaxRequests: 30, Window: time.Minute, Enabled: true},
//	}) {
//	    r.Use(mw)
//	}
package shield

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// StackConfig selects the middleware assembled by DefaultStack.
type StackConfig struct {
	// MaxBodyBytes caps request bodies. Zero disables the cap.
	MaxBodyBytes int64
	// CORSOrigins lists allowed origins; "*" allows any. Empty disables CORS.
	CORSOrigins []string
	RateLimit   RateLimitConfig
	// APIKeyHash is a bcrypt hash. Empty disables the key check.
	APIKeyHash string
	// Public lists path prefixes exempt from rate limiting and key checks.
	Public []string
	// Done stops the rate limiter's bucket GC. Nil leaves GC off.
	Done <-chan struct{}
}

// DefaultStack returns the middleware stack for the API, outermost first:
// HeadToGet → SecurityHeaders → CORS → TraceID → RateLimiter → APIKey → MaxBody.
// CORS runs before the key check so browser preflights are answered
// without credentials.
func DefaultStack(cfg StackConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
	}
	if len(cfg.CORSOrigins) > 0 {
		stack = append(stack, CORS(cfg.CORSOrigins...))
	}
	stack = append(stack, TraceID)
	if cfg.RateLimit.Enabled {
		rl := NewRateLimiter(cfg.RateLimit, cfg.Public...)
		if cfg.Done != nil {
			rl.StartGC(cfg.Done)
		}
		stack = append(stack, rl.Middleware)
	}
	if cfg.APIKeyHash != "" {
		stack = append(stack, APIKey(cfg.APIKeyHash, cfg.Public...))
	}
	if cfg.MaxBodyBytes > 0 {
		stack = append(stack, MaxBody(cfg.MaxBodyBytes))
	}
	return stack
}

// writeError writes the API error envelope {"error": msg, "code": code}.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

func retryAfter(d time.Duration) string {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
