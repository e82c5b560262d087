package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/protocol/gemini"
	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/router"
)

// GeminiModelsPostHandler dispatches POST /v1beta/models/{model}:<action>
// to the right implementation based on the trailing action segment. Like
// the rest of this surface it parses one wildcard path rather than
// registering a chi route per action, since the action names contain a
// ":" that chi's param matcher doesn't split on.
func GeminiModelsPostHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	generate := GeminiGenerateContentHandler(d, mr, pm)
	countTokens := CountTokensHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		rawPath := chi.URLParam(r, "*")
		if strings.HasSuffix(rawPath, ":countTokens") {
			countTokens.ServeHTTP(w, r)
			return
		}
		generate.ServeHTTP(w, r)
	}
}

// GeminiGenerateContentHandler implements the thin-wrap passthrough for
// `/v1beta/models/{model}:generateContent` and `:streamGenerateContent`
// (spec.md §4.4.3): the client body is forwarded close to byte-for-byte,
// only project/model/requestId are patched in.
func GeminiGenerateContentHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rawPath := chi.URLParam(r, "*")
		originalModel := gemini.SplitModelFromPath(rawPath)
		streaming := gemini.IsStreamingMethod(rawPath)
		mappedModel := mr.Resolve(originalModel)
		cfg := reqconfig.Resolve(originalModel, mappedModel)

		clientBody, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}

		method := "generateContent"
		if streaming {
			method = "streamGenerateContent"
		}

		dreq := dispatcher.Request{
			RequestType:    cfg.RequestType,
			OriginalModel:  originalModel,
			MappedModel:    cfg.FinalModel,
			SessionID:      SessionIDFromHeader(r, ""),
			Streaming:      streaming,
			UpstreamMethod: method,
			BuildBody: func(project, model string) map[string]any {
				// Thin-wrap passthrough: the envelope (built by the
				// dispatcher around this fragment) already carries
				// project/model/requestId, so the client's body is
				// forwarded byte-for-byte as the `request` fragment.
				body, err := decodeJSON(clientBody)
				if err != nil {
					return map[string]any{}
				}
				return body
			},
		}

		result, err := d.Dispatch(r.Context(), dreq)
		logDispatch(pm, r, "gemini", originalModel, cfg.FinalModel, start, result, err)
		if err != nil {
			writeDispatchError(w, err)
			return
		}

		w.Header().Set("X-Account-Email", result.Email)
		w.Header().Set("X-Mapped-Model", result.MappedModel)
		defer result.Body.Close()

		if streaming {
			SetSSEHeaders(w)
			w.WriteHeader(result.StatusCode)
			_ = gemini.CopyStream(w, result.Body)
			return
		}

		body, err := io.ReadAll(result.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.StatusCode)
		w.Write(gemini.UnwrapResponse(body))
	}
}
