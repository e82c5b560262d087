package pool

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/retry"
)

const defaultStickyCapacity = 1024

// requestTypes enumerates every reqconfig.RequestType the pool schedules
// a cursor for. Fixed and known up front, so cursors can be preallocated
// at construction time and advanced lock-free afterward.
var requestTypes = []reqconfig.RequestType{reqconfig.Agent, reqconfig.WebSearch, reqconfig.ImageGen}

// AccountPool is the spec.md §3 AccountPool: an ordered sequence of
// credentials, a per-request-type round-robin cursor, and a sticky
// session table.
type AccountPool struct {
	credentials []*Credential
	byEmail     map[string]*Credential

	cursors map[reqconfig.RequestType]*atomic.Int64

	sticky *stickyTable

	refresher Refresher
}

// Refresher abstracts the OAuth collaborator (internal/auth/google) plus
// the persistence write-back (internal/db), so the pool can be tested
// without a real OAuth round trip.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) error
}

// New builds a pool over the given credentials (order preserved).
func New(credentials []*Credential, refresher Refresher) *AccountPool {
	byEmail := make(map[string]*Credential, len(credentials))
	for _, c := range credentials {
		byEmail[c.Email] = c
	}
	cursors := make(map[reqconfig.RequestType]*atomic.Int64, len(requestTypes))
	for _, rt := range requestTypes {
		cursors[rt] = atomic.NewInt64(0)
	}
	return &AccountPool{
		credentials: credentials,
		byEmail:     byEmail,
		cursors:     cursors,
		sticky:      newStickyTable(defaultStickyCapacity),
		refresher:   refresher,
	}
}

// Len implements `len() -> n`.
func (p *AccountPool) Len() int { return len(p.credentials) }

// Pick implements `pick(request_type, force_rotate, session_id?, original_model)`.
func (p *AccountPool) Pick(ctx context.Context, rt reqconfig.RequestType, forceRotate bool, sessionID, mappedModel string) (*PickedCredential, error) {
	now := time.Now()

	if sessionID != "" && !forceRotate {
		if credID, ok := p.sticky.get(sessionID); ok {
			if cred := p.byID(credID); cred != nil && cred.available(rt, mappedModel, now) {
				return p.finalize(ctx, cred, sessionID, now)
			}
		}
	}

	cred := p.pickByCursor(rt, mappedModel, now)
	if cred == nil {
		return nil, ErrNoneAvailable{}
	}
	return p.finalize(ctx, cred, sessionID, now)
}

func (p *AccountPool) pickByCursor(rt reqconfig.RequestType, mappedModel string, now time.Time) *Credential {
	n := len(p.credentials)
	if n == 0 {
		return nil
	}

	cursor := p.cursors[rt]
	if cursor == nil {
		// Unrecognized request type: scan from the start every time rather
		// than allocate a cursor entry outside the fixed set built in New.
		cursor = atomic.NewInt64(0)
	}
	start := int(cursor.Load() % int64(n))

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		cred := p.credentials[idx]
		if cred.available(rt, mappedModel, now) {
			cursor.Store(int64((idx + 1) % n))
			return cred
		}
	}
	return nil
}

func (p *AccountPool) finalize(ctx context.Context, cred *Credential, sessionID string, now time.Time) (*PickedCredential, error) {
	if cred.needsRefresh(now) && p.refresher != nil {
		if err := p.refresher.Refresh(ctx, cred); err != nil {
			// Refresh failure doesn't remove the credential from rotation;
			// the existing (possibly stale) token is still attempted and
			// the upstream 401 will trigger normal rotation.
		}
	}

	cred.touch(now)
	if sessionID != "" {
		p.sticky.set(sessionID, cred.ID)
	}

	accessToken, projectID, email := cred.snapshot()
	return &PickedCredential{ID: cred.ID, AccessToken: accessToken, ProjectID: projectID, Email: email}, nil
}

func (p *AccountPool) byID(id string) *Credential {
	for _, c := range p.credentials {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (p *AccountPool) byEmailLookup(email string) *Credential {
	return p.byEmail[email]
}

// AccessTokenForAccount returns the current access token and project id
// for an account, refreshing it first if it is within the expiry window.
// Used by management endpoints that need to act on a specific account
// rather than go through Pick's rotation.
func (p *AccountPool) AccessTokenForAccount(ctx context.Context, accountID string) (accessToken, projectID string, err error) {
	cred := p.byID(accountID)
	if cred == nil {
		return "", "", ErrNoneAvailable{}
	}
	picked, err := p.finalize(ctx, cred, "", time.Now())
	if err != nil {
		return "", "", err
	}
	return picked.AccessToken, picked.ProjectID, nil
}

// RefreshAccount forces a token refresh for a specific account,
// regardless of its current expiry.
func (p *AccountPool) RefreshAccount(ctx context.Context, accountID string) error {
	cred := p.byID(accountID)
	if cred == nil {
		return ErrNoneAvailable{}
	}
	if p.refresher == nil {
		return nil
	}
	return p.refresher.Refresh(ctx, cred)
}

// RefreshStale walks every credential and refreshes those within the
// expiry window, so a background loop can keep tokens warm without
// forcing a round trip on accounts that don't need one yet. Grounded on
// the teacher's token manager background refresh loop, adapted to the
// pool's per-credential Refresher.
func (p *AccountPool) RefreshStale(ctx context.Context) {
	if p.refresher == nil {
		return
	}
	now := time.Now()
	for _, cred := range p.credentials {
		if !cred.needsRefresh(now) {
			continue
		}
		if err := p.refresher.Refresh(ctx, cred); err != nil {
			// Left inactive-on-repeated-failure by the refresher itself;
			// rotation picks around it until it succeeds.
			continue
		}
	}
}

// SetActive flips a credential's in-memory IsActive flag, letting a
// management API disable/enable an account without restarting the
// process. The database row is the system of record; this mirrors that
// write into the live rotation without requiring a full reload.
func (p *AccountPool) SetActive(accountID string, active bool) bool {
	cred := p.byID(accountID)
	if cred == nil {
		return false
	}
	if active {
		cred.activate()
	} else {
		cred.deactivate()
	}
	return true
}

// MarkRateLimited implements the §4.5 rate-limit bookkeeping.
func (p *AccountPool) MarkRateLimited(email string, rt reqconfig.RequestType, status int, attempt int, retryAfterHeader string, body []byte, mappedModel string) {
	cred := p.byEmailLookup(email)
	if cred == nil {
		return
	}
	decision := retry.Classify(status, body, attempt, retryAfterHeader)
	quotaExhausted := decision.Outcome == retry.OutcomeQuotaExhausted
	cred.markRateLimited(rt, decision.Delay, quotaExhausted, mappedModel)
}

// MarkSuccess implements `mark_success(email)`.
func (p *AccountPool) MarkSuccess(email string) {
	if cred := p.byEmailLookup(email); cred != nil {
		cred.markSuccess()
	}
}

// StickySize exposes the sticky table size for monitoring.
func (p *AccountPool) StickySize() int { return p.sticky.len() }
