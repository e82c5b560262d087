package retry

import (
	"testing"
	"time"
)

func TestParseRetryDelayFromBodyRetryInfo(t *testing.T) {
	body := []byte(`{"error":{"retryInfo":{"retryDelay":"300ms"}}}`)
	d, ok := ParseRetryDelay("", body)
	if !ok || d != 300*time.Millisecond {
		t.Fatalf("expected 300ms, got %v ok=%v", d, ok)
	}
}

func TestParseRetryDelayFromQuotaResetDelay(t *testing.T) {
	body := []byte(`{"error":{"quotaResetDelay":"1.5s"}}`)
	d, ok := ParseRetryDelay("", body)
	if !ok || d != 1500*time.Millisecond {
		t.Fatalf("expected 1500ms, got %v ok=%v", d, ok)
	}
}

func TestParseRetryDelayPrefersBodyOverHeader(t *testing.T) {
	body := []byte(`{"error":{"retryInfo":{"retryDelay":"200ms"}}}`)
	d, ok := ParseRetryDelay("5", body)
	if !ok || d != 200*time.Millisecond {
		t.Fatalf("expected body hint to win, got %v ok=%v", d, ok)
	}
}

func TestParseRetryDelayFallsBackToHeader(t *testing.T) {
	d, ok := ParseRetryDelay("2", nil)
	if !ok || d != 2*time.Second {
		t.Fatalf("expected 2s from header, got %v ok=%v", d, ok)
	}
}

func TestParseRetryDelayComplexDuration(t *testing.T) {
	d, ok := ParseRetryDelay("", []byte(`{"error":{"retryInfo":{"retryDelay":"1h16m0.667s"}}}`))
	if !ok || d <= 0 {
		t.Fatalf("expected positive duration, got %v ok=%v", d, ok)
	}
}

func TestClassifyQuotaExhaustedShortCircuits(t *testing.T) {
	dec := Classify(429, []byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"QUOTA_EXHAUSTED"}}`), 0, "")
	if dec.Outcome != OutcomeQuotaExhausted {
		t.Fatalf("expected quota exhausted, got %v", dec.Outcome)
	}
}

func TestClassifyAuthRotatesShortDelay(t *testing.T) {
	dec := Classify(401, nil, 0, "")
	if dec.Outcome != OutcomeAuth || dec.Delay != 100*time.Millisecond {
		t.Fatalf("unexpected decision: %+v", dec)
	}
}

func TestClassify503Exponential(t *testing.T) {
	d0 := Classify(503, nil, 0, "")
	d1 := Classify(503, nil, 1, "")
	d2 := Classify(503, nil, 5, "")
	if d0.Delay != time.Second {
		t.Fatalf("expected 1s base, got %v", d0.Delay)
	}
	if d1.Delay != 2*time.Second {
		t.Fatalf("expected 2s, got %v", d1.Delay)
	}
	if d2.Delay != 8*time.Second {
		t.Fatalf("expected capped at 8s, got %v", d2.Delay)
	}
}

func TestClassifyTerminalOnOtherStatus(t *testing.T) {
	dec := Classify(404, nil, 0, "")
	if dec.Outcome != OutcomeTerminal {
		t.Fatalf("expected terminal outcome for 404, got %v", dec.Outcome)
	}
}
