package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/protocol/claude"
	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/router"
)

// ClaudeMessagesHandler implements POST /v1/messages (spec.md §4.4.2),
// grounded on the teacher's claude.go attempt loop, generalized through
// internal/dispatcher.
func ClaudeMessagesHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqBody, err := decodeJSONBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}

		originalModel, _ := reqBody["model"].(string)
		mappedModel := mr.Resolve(originalModel)
		cfg := reqconfig.Resolve(originalModel, mappedModel)

		built, err := claude.Build(reqBody, cfg.FinalModel)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		streaming, _ := reqBody["stream"].(bool)
		requestID := GetOrGenerateRequestID(r)
		effectiveModel := claude.EffectiveModel(built.WebSearch || cfg.InjectGoogleSearch, cfg.FinalModel)

		method := "generateContent"
		if streaming {
			method = "streamGenerateContent"
		}

		dreq := dispatcher.Request{
			RequestType:    cfg.RequestType,
			OriginalModel:  originalModel,
			MappedModel:    effectiveModel,
			SessionID:      SessionIDFromHeader(r, built.SessionID),
			Streaming:      streaming,
			UpstreamMethod: method,
			BuildBody: func(project, model string) map[string]any {
				return built.Request
			},
		}

		result, err := d.Dispatch(r.Context(), dreq)
		logDispatch(pm, r, "claude", originalModel, effectiveModel, start, result, err)
		if err != nil {
			writeDispatchError(w, err)
			return
		}

		w.Header().Set("X-Account-Email", result.Email)
		w.Header().Set("X-Mapped-Model", result.MappedModel)

		if streaming {
			SetSSEHeaders(w)
			w.WriteHeader(result.StatusCode)
			relayClaudeStream(w, result.Body, effectiveModel)
			return
		}

		defer result.Body.Close()
		serveClaudeUnary(w, result, effectiveModel)
	}
}

func serveClaudeUnary(w http.ResponseWriter, result *dispatcher.Result, model string) {
	if result.StatusCode >= 400 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.StatusCode)
		io.Copy(w, result.Body)
		return
	}

	body, err := io.ReadAll(result.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	upstreamBody, err := decodeJSON(body)
	if err != nil {
		http.Error(w, "malformed upstream response", http.StatusBadGateway)
		return
	}
	candidate, usage := firstCandidateAndUsage(upstreamBody)
	writeJSON(w, http.StatusOK, claude.ToUnaryResponse(model, candidate, usage))
}

// relayClaudeStream translates the upstream Gemini-shape SSE stream into
// Anthropic Messages SSE events as each upstream chunk arrives.
func relayClaudeStream(w http.ResponseWriter, body io.ReadCloser, model string) {
	defer body.Close()
	flusher, _ := w.(http.Flusher)

	tr := claude.NewStreamTranslator(w)
	_ = tr.Start(model, 0)

	forEachUpstreamChunk(body, func(chunk map[string]any) {
		candidate, _ := firstCandidateAndUsage(chunk)
		if candidate == nil {
			return
		}
		content, _ := candidate["content"].(map[string]any)
		parts, _ := content["parts"].([]any)
		_ = tr.HandleParts(parts)
		if flusher != nil {
			flusher.Flush()
		}
	})

	_ = tr.Finish("STOP", 0)
	if flusher != nil {
		flusher.Flush()
	}
}

func logDispatch(pm *monitor.ProxyMonitor, r *http.Request, provider, originalModel, mappedModel string, start time.Time, result *dispatcher.Result, err error) {
	if pm == nil {
		return
	}
	status := 0
	email := ""
	if result != nil {
		status = result.StatusCode
		email = result.Email
	}
	if err != nil {
		log.Printf("⚠️  dispatch failed provider=%s model=%s err=%v", provider, mappedModel, err)
	}
	pm.LogRequest(requestLogFor(r, provider, originalModel, mappedModel, email, status, time.Since(start)))
}
