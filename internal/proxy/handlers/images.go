package handlers

import (
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/router"
)

const maxEditUpload = 20 << 20 // 20MB, grounded on the teacher's multipart size ceiling

// ImageGenerationsHandler implements POST /v1/images/generations
// (spec.md §6/§8 scenario image aspect parsing): it fans n parallel
// upstream calls and gathers results, allowing partial success as long
// as at least one image comes back (spec.md §5 Scheduling).
func ImageGenerationsHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeJSONBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}

		prompt, _ := reqBody["prompt"].(string)
		originalModel, _ := reqBody["model"].(string)
		if originalModel == "" {
			originalModel = "gemini-3-pro-image"
		}
		n := intField(reqBody, "n", 1)

		images, failures := generateImages(r, d, mr, pm, originalModel, prompt, n)
		respondImages(w, images, failures)
	}
}

// ImageEditsHandler implements POST /v1/images/edits (multipart): the
// same n-way fan-out, with the uploaded image attached as inline data
// alongside the prompt.
func ImageEditsHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxEditUpload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart body"})
			return
		}

		prompt := r.FormValue("prompt")
		originalModel := r.FormValue("model")
		if originalModel == "" {
			originalModel = "gemini-3-pro-image"
		}
		n, _ := strconv.Atoi(r.FormValue("n"))
		if n < 1 {
			n = 1
		}

		imageData, imageMIME, err := readUploadedImage(r.MultipartForm)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		images, failures := generateImageEdits(r, d, mr, pm, originalModel, prompt, imageData, imageMIME, n)
		respondImages(w, images, failures)
	}
}

func readUploadedImage(form *multipart.Form) (string, string, error) {
	files := form.File["image"]
	if len(files) == 0 {
		return "", "", nil
	}
	file, err := files[0].Open()
	if err != nil {
		return "", "", err
	}
	defer file.Close()
	data := make([]byte, files[0].Size)
	if _, err := file.Read(data); err != nil {
		return "", "", err
	}
	return string(data), files[0].Header.Get("Content-Type"), nil
}

func generateImages(r *http.Request, d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor, originalModel, prompt string, n int) ([]string, int) {
	return fanOutImages(r, d, mr, pm, originalModel, n, func(cfg reqconfig.Config) map[string]any {
		return imageRequestBody(prompt, cfg, "", "")
	})
}

func generateImageEdits(r *http.Request, d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor, originalModel, prompt, imageData, imageMIME string, n int) ([]string, int) {
	return fanOutImages(r, d, mr, pm, originalModel, n, func(cfg reqconfig.Config) map[string]any {
		return imageRequestBody(prompt, cfg, imageData, imageMIME)
	})
}

func fanOutImages(r *http.Request, d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor, originalModel string, n int, buildBody func(reqconfig.Config) map[string]any) ([]string, int) {
	mappedModel := mr.Resolve(originalModel)
	cfg := reqconfig.Resolve(originalModel, mappedModel)

	results := make([]string, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			start := time.Now()

			dreq := dispatcher.Request{
				RequestType:    cfg.RequestType,
				OriginalModel:  originalModel,
				MappedModel:    cfg.FinalModel,
				UpstreamMethod: "generateContent",
				BuildBody: func(project, model string) map[string]any {
					return buildBody(cfg)
				},
			}

			result, err := d.Dispatch(r.Context(), dreq)
			logDispatch(pm, r, "image", originalModel, cfg.FinalModel, start, result, err)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				log.Printf("⚠️  image generation attempt %d failed: %v", idx, err)
				return
			}
			defer result.Body.Close()

			body, err := readAllClose(result.Body)
			if err != nil || result.StatusCode >= 400 {
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			b64, ok := extractInlineImage(body)
			if !ok {
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			mu.Lock()
			results[idx] = b64
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	images := make([]string, 0, n)
	for _, r := range results {
		if r != "" {
			images = append(images, r)
		}
	}
	return images, failures
}

func imageRequestBody(prompt string, cfg reqconfig.Config, imageData, imageMIME string) map[string]any {
	parts := []any{map[string]any{"text": prompt}}
	if imageData != "" {
		parts = append(parts, map[string]any{"inlineData": map[string]any{"mimeType": imageMIME, "data": imageData}})
	}

	generationConfig := map[string]any{"responseModalities": []string{"Image"}}
	if cfg.Image != nil {
		generationConfig["imageConfig"] = map[string]any{"aspectRatio": cfg.Image.AspectRatio}
		if cfg.Image.ImageSize != "" {
			generationConfig["imageConfig"].(map[string]any)["imageSize"] = cfg.Image.ImageSize
		}
	}

	return map[string]any{
		"contents":         []any{map[string]any{"role": "user", "parts": parts}},
		"generationConfig": generationConfig,
	}
}

func extractInlineImage(body []byte) (string, bool) {
	upstreamBody, err := decodeJSON(body)
	if err != nil {
		return "", false
	}
	candidate, _ := firstCandidateAndUsage(upstreamBody)
	if candidate == nil {
		return "", false
	}
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if inline, ok := part["inlineData"].(map[string]any); ok {
			if data, ok := inline["data"].(string); ok {
				return data, true
			}
		}
	}
	return "", false
}

func respondImages(w http.ResponseWriter, images []string, failures int) {
	if len(images) == 0 {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "all image generation attempts failed"})
		return
	}
	if failures > 0 {
		log.Printf("⚠️  image generation: %d of %d attempts failed, returning partial results", failures, failures+len(images))
	}

	data := make([]any, 0, len(images))
	for _, b64 := range images {
		data = append(data, map[string]any{"b64_json": b64})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created": time.Now().Unix(),
		"data":    data,
	})
}

func intField(body map[string]any, key string, def int) int {
	v, ok := body[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func readAllClose(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
