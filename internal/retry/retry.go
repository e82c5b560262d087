// Package retry implements the dispatcher's retry-delay parsing and
// classification as pure functions, independently testable from account
// selection (spec.md §9 design note).
package retry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Outcome is the dispatcher-facing classification of an upstream failure.
type Outcome int

const (
	// OutcomeQuotaExhausted means return the upstream status/body as-is;
	// the pool is protected from further contact for this account/type.
	OutcomeQuotaExhausted Outcome = iota
	// OutcomeRateLimited means mark the account rate-limited and retry
	// with the computed delay.
	OutcomeRateLimited
	// OutcomeAuth means rotate the account after a short fixed delay.
	OutcomeAuth
	// OutcomeTerminal means return the upstream status/body as-is; not
	// retryable.
	OutcomeTerminal
)

// Decision is the result of Classify.
type Decision struct {
	Outcome Outcome
	Delay   time.Duration
}

// quotaExhaustedToken is searched for verbatim in the raw error body.
const quotaExhaustedToken = "QUOTA_EXHAUSTED"

// Classify implements the status/body decision tree from spec.md §4.6/§7.
// attempt is zero-based. retryAfterHeader is the raw `Retry-After` header
// value, if any.
func Classify(status int, body []byte, attempt int, retryAfterHeader string) Decision {
	if status == 429 && strings.Contains(string(body), quotaExhaustedToken) {
		return Decision{Outcome: OutcomeQuotaExhausted}
	}

	switch status {
	case 401, 403:
		return Decision{Outcome: OutcomeAuth, Delay: 100 * time.Millisecond}
	case 429:
		return Decision{Outcome: OutcomeRateLimited, Delay: delayFor429(body, retryAfterHeader, attempt)}
	case 500:
		return Decision{Outcome: OutcomeRateLimited, Delay: linearDelay(500, attempt)}
	case 503, 529:
		return Decision{Outcome: OutcomeRateLimited, Delay: exponentialDelay(1000, 8000, attempt)}
	default:
		return Decision{Outcome: OutcomeTerminal}
	}
}

func delayFor429(body []byte, retryAfterHeader string, attempt int) time.Duration {
	if hint, ok := ParseRetryDelay(retryAfterHeader, body); ok {
		return fixedDelay(hint)
	}
	return linearDelay(1000, attempt)
}

func fixedDelay(hint time.Duration) time.Duration {
	d := hint + 200*time.Millisecond
	if d > 10*time.Second {
		return 10 * time.Second
	}
	return d
}

func linearDelay(baseMS int, attempt int) time.Duration {
	return time.Duration(baseMS*(attempt+1)) * time.Millisecond
}

func exponentialDelay(baseMS, maxMS int, attempt int) time.Duration {
	d := baseMS << attempt
	if d > maxMS {
		d = maxMS
	}
	return time.Duration(d) * time.Millisecond
}

type retryInfoBody struct {
	Error struct {
		RetryInfo struct {
			RetryDelay string `json:"retryDelay"`
		} `json:"retryInfo"`
		QuotaResetDelay string `json:"quotaResetDelay"`
		Details         []struct {
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// ParseRetryDelay implements the §4.5 parse order: upstream JSON hint
// first (`error.retryInfo.retryDelay` or `error.quotaResetDelay`), then
// the `Retry-After` header. Accepts `"<int>ms"` and `"<float>s"`/Go
// duration strings.
func ParseRetryDelay(retryAfterHeader string, body []byte) (time.Duration, bool) {
	if len(body) > 0 {
		var parsed retryInfoBody
		if err := json.Unmarshal(body, &parsed); err == nil {
			if d, ok := parseDelayString(parsed.Error.RetryInfo.RetryDelay); ok {
				return d, true
			}
			if d, ok := parseDelayString(parsed.Error.QuotaResetDelay); ok {
				return d, true
			}
			for _, detail := range parsed.Error.Details {
				if d, ok := parseDelayString(detail.RetryDelay); ok {
					return d, true
				}
			}
		}
	}

	header := strings.TrimSpace(retryAfterHeader)
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			return time.Duration(secs) * time.Second, true
		}
		if d, ok := parseDelayString(header); ok {
			return d, true
		}
	}

	return 0, false
}

func parseDelayString(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}
