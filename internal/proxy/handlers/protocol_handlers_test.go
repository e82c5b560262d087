package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/pool"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/router"
)

func chiRouterForGeminiTest(d *dispatcher.Dispatcher, mr *router.Router) http.Handler {
	r := chi.NewRouter()
	var pm *monitor.ProxyMonitor
	r.Post("/v1beta/models/*", GeminiGenerateContentHandler(d, mr, pm))
	return r
}

type noopRefresher struct{}

func (noopRefresher) Refresh(context.Context, *pool.Credential) error { return nil }

func newTestPool(t *testing.T) *pool.AccountPool {
	t.Helper()
	cred := pool.NewCredential("acc-1", "acc-1@example.com", "google", "tok-1", "refresh-1", "proj-1", time.Now().Add(time.Hour), true)
	return pool.New([]*pool.Credential{cred}, noopRefresher{})
}

type scriptedCaller struct {
	response func() (*http.Response, error)
	calls    int
}

func (s *scriptedCaller) Call(ctx context.Context, method, accessToken string, body map[string]any, queryString string) (*http.Response, error) {
	s.calls++
	return s.response()
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

func newTestDispatcher(t *testing.T, caller *scriptedCaller) *dispatcher.Dispatcher {
	t.Helper()
	return dispatcher.NewWithCaller(newTestPool(t), caller)
}

func newTestRouter() *router.Router {
	return router.New(router.DefaultOpenAICompat(), router.DefaultAnthropicCompat())
}

func TestClaudeMessagesHandlerUnaryTranslatesUpstreamResponse(t *testing.T) {
	caller := &scriptedCaller{response: jsonResponse(200, `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}}`)}
	d := dispatcher.NewWithCaller(newTestPool(t), caller)

	body := `{"model":"claude-3-opus","max_tokens":256,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ClaudeMessagesHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if resp["type"] != "message" {
		t.Fatalf("expected Anthropic message shape, got %v", resp)
	}
	if rec.Header().Get("X-Account-Email") == "" {
		t.Fatalf("expected X-Account-Email header set")
	}
}

func TestOpenAIChatHandlerUnaryTranslatesUpstreamResponse(t *testing.T) {
	caller := &scriptedCaller{response: jsonResponse(200, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi there"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}}`)}
	d := dispatcher.NewWithCaller(newTestPool(t), caller)

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	OpenAIChatHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if resp["object"] != "chat.completion" {
		t.Fatalf("expected chat.completion shape, got %v", resp)
	}
}

func TestLegacyCompletionsHandlerReshapesPromptIntoMessages(t *testing.T) {
	caller := &scriptedCaller{response: jsonResponse(200, `{"response":{"candidates":[{"content":{"parts":[{"text":"done"}]},"finishReason":"STOP"}]}}`)}
	d := dispatcher.NewWithCaller(newTestPool(t), caller)

	body := `{"model":"gpt-4o","prompt":"say hi"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	LegacyCompletionsHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestOpenAIChatHandlerStreamsSSEChunksAndDone(t *testing.T) {
	upstream := "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hi\"}]}}]}}\n\n" +
		"data: [DONE]\n\n"
	caller := &scriptedCaller{response: func() (*http.Response, error) {
		return &http.Response{StatusCode: 200, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(upstream))}, nil
	}}
	d := dispatcher.NewWithCaller(newTestPool(t), caller)

	body := `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	OpenAIChatHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "[DONE]") {
		t.Fatalf("expected a terminal [DONE] event, got %s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %s", ct)
	}
}

func TestGeminiGenerateContentHandlerPassesThroughUnwrappedBody(t *testing.T) {
	caller := &scriptedCaller{response: jsonResponse(200, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`)}
	d := dispatcher.NewWithCaller(newTestPool(t), caller)

	body := `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-3-pro:generateContent", strings.NewReader(body))
	rec := httptest.NewRecorder()

	r := chiRouterForGeminiTest(d, newTestRouter())
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"response"`) {
		t.Fatalf("expected the response envelope unwrapped, got %s", rec.Body.String())
	}
}
