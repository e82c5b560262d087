// Package pool implements the Account Pool / Token Manager (spec.md §3,
// §4.5): scheduling credentials by request-type, sticky sessions,
// rate-limit bookkeeping, and quota protection.
//
// Grounded on internal/auth/token/manager.go's gorm-backed cache and
// refresh loop, generalized from a single cached access token to the full
// per-request-type scheduler state, and on gcli2api-go's
// internal/upstream/strategy package for the sticky/cooldown shape.
package pool

import (
	"sync"
	"time"

	"github.com/ccrelay/nexus/internal/reqconfig"
)

// Credential mirrors spec.md §3's Credential: a stable account plus the
// scheduler state the Token Manager mutates.
type Credential struct {
	mu sync.Mutex

	ID           string
	Email        string
	Provider     string
	AccessToken  string
	RefreshToken string
	ProjectID    string
	ExpiresAt    time.Time
	IsActive     bool
	LastUsedAt   time.Time

	consecutiveFailures int
	rateLimitedUntil    map[string]time.Time
	quotaUsed           map[reqconfig.RequestType]int
}

// NewCredential builds a Credential outside of refresh.LoadCredentials,
// used by cross-package tests (e.g. internal/dispatcher) that need a
// pool without a real database behind it.
func NewCredential(id, email, provider, accessToken, refreshToken, projectID string, expiresAt time.Time, active bool) *Credential {
	return newCredential(id, email, provider, accessToken, refreshToken, projectID, expiresAt, active)
}

func newCredential(id, email, provider, accessToken, refreshToken, projectID string, expiresAt time.Time, active bool) *Credential {
	return &Credential{
		ID:               id,
		Email:            email,
		Provider:         provider,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ProjectID:        projectID,
		ExpiresAt:        expiresAt,
		IsActive:         active,
		rateLimitedUntil: make(map[string]time.Time),
		quotaUsed:        make(map[reqconfig.RequestType]int),
	}
}

// quotaCeilings caps per-request-type usage when tracked; zero means
// untracked (always available). Image generation is the one request type
// the spec's scenarios exercise a ceiling against.
var quotaCeilings = map[reqconfig.RequestType]int{
	reqconfig.ImageGen: 0,
}

func rateLimitKey(rt reqconfig.RequestType) string { return string(rt) }

func quotaKey(rt reqconfig.RequestType, mappedModel string) string {
	if mappedModel == "" {
		return string(rt)
	}
	return string(rt) + "|" + mappedModel
}

// available reports whether the credential can currently serve the given
// request type: active, not within a rate-limit window, and under its
// quota ceiling if one is tracked.
func (c *Credential) available(rt reqconfig.RequestType, mappedModel string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsActive {
		return false
	}
	if until, ok := c.rateLimitedUntil[rateLimitKey(rt)]; ok && now.Before(until) {
		return false
	}
	if mappedModel != "" {
		if until, ok := c.rateLimitedUntil[quotaKey(rt, mappedModel)]; ok && now.Before(until) {
			return false
		}
	}
	if ceiling, tracked := quotaCeilings[rt]; tracked && ceiling > 0 {
		if c.quotaUsed[rt] >= ceiling {
			return false
		}
	}
	return true
}

func (c *Credential) needsRefresh(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Add(60 * time.Second).After(c.ExpiresAt)
}

func (c *Credential) snapshot() (accessToken, projectID, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AccessToken, c.ProjectID, c.Email
}

func (c *Credential) touch(now time.Time) {
	c.mu.Lock()
	c.LastUsedAt = now
	c.mu.Unlock()
}

func (c *Credential) applyRefresh(accessToken, refreshToken string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	c.IsActive = true
}

func (c *Credential) deactivate() {
	c.mu.Lock()
	c.IsActive = false
	c.mu.Unlock()
}

func (c *Credential) activate() {
	c.mu.Lock()
	c.IsActive = true
	c.mu.Unlock()
}

// markRateLimited sets the rate-limit window for a request type (and,
// when mappedModel is non-empty and the failure is quota exhaustion, a
// long cooldown scoped to that model group too).
func (c *Credential) markRateLimited(rt reqconfig.RequestType, delay time.Duration, quotaExhausted bool, mappedModel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures++
	if quotaExhausted {
		long := time.Now().Add(6 * time.Hour)
		c.rateLimitedUntil[rateLimitKey(rt)] = long
		if mappedModel != "" {
			c.rateLimitedUntil[quotaKey(rt, mappedModel)] = long
		}
		return
	}
	c.rateLimitedUntil[rateLimitKey(rt)] = time.Now().Add(delay)
}

func (c *Credential) markSuccess() {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.mu.Unlock()
}

// PickedCredential is what Pick returns to the dispatcher.
type PickedCredential struct {
	ID          string
	AccessToken string
	ProjectID   string
	Email       string
}

// ErrNoneAvailable is returned by Pick when no credential currently
// qualifies (spec.md §7 NoCredential).
type ErrNoneAvailable struct{}

func (ErrNoneAvailable) Error() string { return "no credential available" }
