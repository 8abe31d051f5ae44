package campusadmin

import (
	"time"

	"github.com/eringen/campusadmin/uploadlog"
)

// LoginLimiter rate-limits failed login attempts per IP address. Only
// failures are recorded, so successful logins never use up the budget.
type LoginLimiter struct {
	window *uploadlog.RateLimiter
}

// NewLoginLimiter creates a LoginLimiter that allows max failures per window.
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{window: uploadlog.NewRateLimiter(max, window)}
}

// Check returns true if the IP has not exceeded the rate limit.
// It does not record an attempt; call Record on failure.
func (l *LoginLimiter) Check(ip string) bool { return l.window.Check(ip) }

// Record registers a failed login attempt for the given IP.
func (l *LoginLimiter) Record(ip string) { l.window.Record(ip) }

// Reset forgets the attempts of ip after a successful login.
func (l *LoginLimiter) Reset(ip string) { l.window.Reset(ip) }

// Stop ends the background cleanup.
func (l *LoginLimiter) Stop() { l.window.Stop() }
