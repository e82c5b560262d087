package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestImageGenerationsHandlerReturnsB64Image(t *testing.T) {
	inlineData := "ZmFrZS1pbWFnZS1ieXRlcw=="
	caller := &scriptedCaller{response: jsonResponse(200, `{"response":{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"`+inlineData+`"}}]}}]}}`)}
	d := newTestDispatcher(t, caller)

	body := `{"prompt":"a cat","model":"gemini-3-pro-image","n":1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ImageGenerationsHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), inlineData) {
		t.Fatalf("expected the inline image data echoed back, got %s", rec.Body.String())
	}
}

func TestImageGenerationsHandlerAllFailuresReturnsBadGateway(t *testing.T) {
	caller := &scriptedCaller{response: jsonResponse(500, `{"error":"boom"}`)}
	d := newTestDispatcher(t, caller)

	body := `{"prompt":"a cat","n":1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ImageGenerationsHandler(d, newTestRouter(), nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when every fan-out attempt fails, got %d body=%s", rec.Code, rec.Body.String())
	}
}
