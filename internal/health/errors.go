package health

import (
	"net/http"
	"strings"
	"time"
)

type quotaSignature struct {
	pattern  string
	cooldown time.Duration
}

// Quota markers as returned by the search, maps and model APIs. The first
// match decides, so more specific markers come before generic ones.
var quotaSignatures = []quotaSignature{
	// exhausted until the billing period or day rolls over
	{"insufficient_quota", 24 * time.Hour},
	{"billing", 24 * time.Hour},
	{"daily limit", 24 * time.Hour},
	{"access_limit_reached", 24 * time.Hour}, // yelp daily call cap
	{"over_daily_limit", 24 * time.Hour},     // google

	// short bursts
	{"too_many_requests_per_second", time.Minute}, // yelp
	{"over_query_limit", 5 * time.Minute},          // google
	{"rate_limit_exceeded", 5 * time.Minute},
	{"rate limit", 5 * time.Minute},
	{"too many requests", 5 * time.Minute},
	{"requests per minute", 5 * time.Minute},
	{"tokens per minute", 5 * time.Minute},
	{"quota exceeded", time.Hour},
	{"quota_exceeded", time.Hour},
}

func matchQuota(responseBody string) (quotaSignature, bool) {
	lower := strings.ToLower(responseBody)
	for _, sig := range quotaSignatures {
		if strings.Contains(lower, sig.pattern) {
			return sig, true
		}
	}
	return quotaSignature{}, false
}

// IsQuotaError reports whether a failure was caused by quota exhaustion or rate limiting
func IsQuotaError(statusCode int, responseBody string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	_, ok := matchQuota(responseBody)
	return ok
}

// ParseCooldownDuration picks how long to stop calling an upstream after a quota error
func ParseCooldownDuration(statusCode int, responseBody string) time.Duration {
	if sig, ok := matchQuota(responseBody); ok {
		return sig.cooldown
	}
	if statusCode == http.StatusTooManyRequests {
		return 5 * time.Minute
	}
	return time.Hour
}
