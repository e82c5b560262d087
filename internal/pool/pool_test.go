package pool

import (
	"context"
	"testing"
	"time"

	"github.com/ccrelay/nexus/internal/reqconfig"
)

type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context, cred *Credential) error { return nil }

func newTestCredential(id, email string) *Credential {
	return newCredential(id, email, "google", "tok-"+id, "refresh-"+id, "proj-"+id, time.Now().Add(time.Hour), true)
}

func TestPoolRotationAcrossThreeAccounts(t *testing.T) {
	creds := []*Credential{
		newTestCredential("1", "a@example.com"),
		newTestCredential("2", "b@example.com"),
		newTestCredential("3", "c@example.com"),
	}
	p := New(creds, noopRefresher{})

	seen := map[string]bool{}
	for attempt := 0; attempt < 3; attempt++ {
		picked, err := p.Pick(context.Background(), reqconfig.Agent, attempt > 0, "", "")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
		}
		seen[picked.Email] = true
		p.MarkRateLimited(picked.Email, reqconfig.Agent, 503, attempt, "", nil, "")
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct accounts selected, got %d: %v", len(seen), seen)
	}
}

func TestStickySessionReturnsSameAccountUntilRateLimited(t *testing.T) {
	creds := []*Credential{
		newTestCredential("1", "a@example.com"),
		newTestCredential("2", "b@example.com"),
	}
	p := New(creds, noopRefresher{})

	first, err := p.Pick(context.Background(), reqconfig.Agent, false, "sess-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Pick(context.Background(), reqconfig.Agent, false, "sess-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Email != second.Email {
		t.Fatalf("expected sticky session to return the same account, got %s then %s", first.Email, second.Email)
	}

	p.MarkRateLimited(first.Email, reqconfig.Agent, 503, 0, "", nil, "")
	third, err := p.Pick(context.Background(), reqconfig.Agent, false, "sess-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Email == first.Email {
		t.Fatalf("expected a different account once the sticky account is rate-limited")
	}
}

func TestPickReturnsErrNoneAvailableWhenAllRateLimited(t *testing.T) {
	creds := []*Credential{newTestCredential("1", "a@example.com")}
	p := New(creds, noopRefresher{})

	p.MarkRateLimited("a@example.com", reqconfig.Agent, 503, 0, "", nil, "")
	_, err := p.Pick(context.Background(), reqconfig.Agent, false, "", "")
	if err == nil {
		t.Fatalf("expected ErrNoneAvailable")
	}
}

func TestMarkSuccessResetsFailureCounter(t *testing.T) {
	cred := newTestCredential("1", "a@example.com")
	p := New([]*Credential{cred}, noopRefresher{})
	p.MarkRateLimited("a@example.com", reqconfig.Agent, 500, 0, "", nil, "")
	if cred.consecutiveFailures == 0 {
		t.Fatalf("expected failure counter to increment")
	}
	p.MarkSuccess("a@example.com")
	if cred.consecutiveFailures != 0 {
		t.Fatalf("expected failure counter reset after success, got %d", cred.consecutiveFailures)
	}
}

func TestQuotaExhaustedAppliesLongCooldown(t *testing.T) {
	cred := newTestCredential("1", "a@example.com")
	p := New([]*Credential{cred}, noopRefresher{})

	body := []byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"QUOTA_EXHAUSTED"}}`)
	p.MarkRateLimited("a@example.com", reqconfig.ImageGen, 429, 0, "", body, "gemini-3-pro-image")

	if cred.available(reqconfig.ImageGen, "", time.Now()) {
		t.Fatalf("expected request-type window to apply even without model group")
	}
}
