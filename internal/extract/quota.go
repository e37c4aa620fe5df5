package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// quotaMarkers identify rate-limit failures in model error text. The provider
// does not return a typed error for these.
var quotaMarkers = []string{
	"429", "quota", "ratelimit", "rate_limit",
	"resource_exhausted", "resource exhausted", "too many requests",
}

// rateWord matches "rate" as a word, so "generate" is not a quota error.
var rateWord = regexp.MustCompile(`\brate\b`)

var retryDelayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`),
	regexp.MustCompile(`(?i)retry after (\d+(?:\.\d+)?)\s*s`),
	regexp.MustCompile(`(?i)retry_delay\s*\{\s*seconds:\s*(\d+)`),
	regexp.MustCompile(`(?i)"retryDelay"\s*:\s*"(\d+(?:\.\d+)?)s"`),
}

// IsQuotaError reports whether err looks like a provider rate-limit response.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return rateWord.MatchString(msg)
}

// suggestedWait reads the provider's retry hint from the error text, or
// returns def when there is none.
func suggestedWait(err error, def time.Duration) time.Duration {
	if err == nil {
		return def
	}
	msg := err.Error()
	for _, re := range retryDelayPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		secs, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil || secs <= 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
