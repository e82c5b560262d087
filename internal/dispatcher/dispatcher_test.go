package dispatcher

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ccrelay/nexus/internal/pool"
	"github.com/ccrelay/nexus/internal/reqconfig"
)

type noopRefresher struct{}

func (noopRefresher) Refresh(context.Context, *pool.Credential) error { return nil }

func newCred(t *testing.T, id, email string) *pool.Credential {
	t.Helper()
	return pool.NewCredential(id, email, "google", "tok-"+id, "refresh-"+id, "proj-"+id, time.Now().Add(time.Hour), true)
}

func newPool(t *testing.T, n int) *pool.AccountPool {
	t.Helper()
	creds := make([]*pool.Credential, 0, n)
	letters := []string{"a", "b", "c"}
	for i := 0; i < n; i++ {
		creds = append(creds, newCred(t, letters[i], letters[i]+"@example.com"))
	}
	return pool.New(creds, noopRefresher{})
}

type scriptedCaller struct {
	responses []func() (*http.Response, error)
	calls     int
}

func (s *scriptedCaller) Call(ctx context.Context, method, accessToken string, body map[string]any, queryString string) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i]()
}

func jsonResponse(status int, body string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func TestDispatchRotatesAccountsOn503ThenSucceeds(t *testing.T) {
	p := newPool(t, 3)
	caller := &scriptedCaller{responses: []func() (*http.Response, error){
		jsonResponse(503, `{"error":"unavailable"}`),
		jsonResponse(200, `{"response":{"candidates":[]}}`),
	}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "generateContent",
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := d.Dispatch(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 200 {
		t.Fatalf("expected eventual 200, got %d", result.StatusCode)
	}
	if caller.calls != 2 {
		t.Fatalf("expected exactly 2 upstream calls (one retry), got %d", caller.calls)
	}
}

func TestDispatchReturnsQuotaExhaustedAsIsWithoutFurtherRetry(t *testing.T) {
	p := newPool(t, 3)
	caller := &scriptedCaller{responses: []func() (*http.Response, error){
		jsonResponse(429, `{"error":{"status":"RESOURCE_EXHAUSTED","message":"QUOTA_EXHAUSTED"}}`),
		jsonResponse(200, `{"response":{}}`),
	}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "generateContent",
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	result, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 429 {
		t.Fatalf("expected the 429 quota-exhausted response returned as-is, got %d", result.StatusCode)
	}
	if caller.calls != 1 {
		t.Fatalf("expected exactly 1 upstream call (no retry for quota-exhausted), got %d", caller.calls)
	}
}

func TestDispatchReturns404AsTerminalWithoutRetry(t *testing.T) {
	p := newPool(t, 3)
	caller := &scriptedCaller{responses: []func() (*http.Response, error){
		jsonResponse(404, `{"error":"not found"}`),
	}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "generateContent",
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	result, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 404 {
		t.Fatalf("expected 404 returned as-is, got %d", result.StatusCode)
	}
	if caller.calls != 1 {
		t.Fatalf("expected no retry for a non-retryable 404, got %d calls", caller.calls)
	}
}

func TestDispatchAllAttemptsFailedReturnsError(t *testing.T) {
	p := newPool(t, 2)
	caller := &scriptedCaller{responses: []func() (*http.Response, error){
		jsonResponse(500, `{"error":"boom"}`),
		jsonResponse(500, `{"error":"boom"}`),
	}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "generateContent",
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	_, err := d.Dispatch(context.Background(), req)
	if err == nil {
		t.Fatalf("expected an error after exhausting all attempts")
	}
	failed, ok := err.(ErrAllAttemptsFailed)
	if !ok {
		t.Fatalf("expected ErrAllAttemptsFailed, got %T: %v", err, err)
	}
	if failed.Attempts != 2 {
		t.Fatalf("expected attempts clamped to pool size 2, got %d", failed.Attempts)
	}
}

func streamResponse(body string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func TestDispatchStreamSplicesFirstChunkBackOntoReturnedStream(t *testing.T) {
	p := newPool(t, 1)
	body := "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hi\"}]}}]}}\n\n" +
		"data: [DONE]\n\n"
	caller := &scriptedCaller{responses: []func() (*http.Response, error){streamResponse(body)}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "streamGenerateContent",
		Streaming:      true,
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	result, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := io.ReadAll(result.Body)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !strings.Contains(string(got), "\"text\":\"hi\"") {
		t.Fatalf("expected peeked first chunk spliced back onto stream, got %s", got)
	}
	if !strings.Contains(string(got), "[DONE]") {
		t.Fatalf("expected remainder of stream preserved, got %s", got)
	}
}

func TestDispatchEmptyStreamIsRetried(t *testing.T) {
	p := newPool(t, 2)
	caller := &scriptedCaller{responses: []func() (*http.Response, error){
		streamResponse(""),
		streamResponse("data: {\"response\":{\"candidates\":[]}}\n\n"),
	}}
	d := NewWithCaller(p, caller)

	req := Request{
		RequestType:    reqconfig.Agent,
		MappedModel:    "gemini-3-pro",
		UpstreamMethod: "streamGenerateContent",
		Streaming:      true,
		BuildBody:      func(project, model string) map[string]any { return map[string]any{} },
	}

	result, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.calls != 2 {
		t.Fatalf("expected an empty first stream to trigger rotation and retry, got %d calls", caller.calls)
	}
	got, _ := io.ReadAll(result.Body)
	if len(got) == 0 {
		t.Fatalf("expected the second attempt's content to be returned")
	}
}
