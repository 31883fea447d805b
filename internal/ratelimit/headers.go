package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// SetHeaders writes the X-RateLimit-* headers for info, plus Retry-After
// (whole seconds, rounded up, at least 1) when the request was denied.
func SetHeaders(h http.Header, info Info, allowed bool) {
	if info.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

	if !allowed {
		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(info.RetryAfter)))
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
