// Package dispatcher implements the spec.md §4.6 retry/rotation loop: the
// single place that picks an account, calls upstream, classifies
// failures, and decides whether to retry with a different account or
// hand the response (or a terminal error) back to the caller. It is
// shared by all three protocol handlers, grounded on
// internal/proxy/handlers/claude.go's attempt loop generalized across
// protocols.
package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccrelay/nexus/internal/pool"
	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/retry"
	"github.com/ccrelay/nexus/internal/upstream"
)

// Caller is the subset of *upstream.Client the dispatcher needs; narrowed
// to an interface so the retry loop can be tested without a real
// transport factory.
type Caller interface {
	Call(ctx context.Context, method, accessToken string, body map[string]any, queryString string) (*http.Response, error)
}

const peekDeadline = 60 * time.Second

// Request describes one incoming client call in protocol-neutral terms.
// BuildBody is invoked fresh on every attempt (spec.md §4.6: "re-built
// each attempt") so per-attempt project/model substitutions land in the
// envelope without the caller needing to know about retries.
type Request struct {
	RequestType   reqconfig.RequestType
	OriginalModel string
	MappedModel   string
	SessionID     string
	Streaming     bool
	UpstreamMethod string
	QueryString    string
	BuildBody     func(project, model string) map[string]any
}

// Result is what the dispatcher hands back on success: either a unary
// body or a stream reader with the peeked prefix already spliced back on.
type Result struct {
	StatusCode int
	Body       io.ReadCloser
	Email      string
	MappedModel string
}

// ErrAllAttemptsFailed is returned, with the last upstream status/body
// recorded on it, when every attempt in the retry chain failed.
type ErrAllAttemptsFailed struct {
	Attempts   int
	LastStatus int
	LastBody   []byte
}

func (e ErrAllAttemptsFailed) Error() string {
	return fmt.Sprintf("All %d attempts failed. Last error: %s", e.Attempts, string(e.LastBody))
}

// Dispatcher ties together the account pool and the upstream client.
type Dispatcher struct {
	pool   *pool.AccountPool
	client Caller
}

// New builds a Dispatcher.
func New(p *pool.AccountPool, c *upstream.Client) *Dispatcher {
	return &Dispatcher{pool: p, client: c}
}

// NewWithCaller builds a Dispatcher over an arbitrary Caller, used by
// tests to substitute a fake upstream.
func NewWithCaller(p *pool.AccountPool, c Caller) *Dispatcher {
	return &Dispatcher{pool: p, client: c}
}

// Dispatch runs the spec.md §4.6 algorithm end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	maxAttempts := clamp(d.pool.Len(), 1, 3)

	var lastStatus int
	var lastBody []byte

	for attempt := 0; attempt < maxAttempts; attempt++ {
		picked, err := d.pool.Pick(ctx, req.RequestType, attempt > 0, req.SessionID, req.MappedModel)
		if err != nil {
			lastBody = []byte(err.Error())
			continue
		}

		body := req.BuildBody(picked.ProjectID, req.MappedModel)
		envelope := upstream.BuildEnvelope(picked.ProjectID, req.MappedModel, string(req.RequestType), body)

		resp, err := d.client.Call(ctx, req.UpstreamMethod, picked.AccessToken, envelope, req.QueryString)
		if err != nil {
			lastBody = []byte(err.Error())
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if req.Streaming {
				ok, result, err := d.acceptStream(ctx, resp, picked, req.MappedModel)
				if err != nil {
					return nil, err
				}
				if ok {
					return result, nil
				}
				// Peek determined the stream was empty or carried an
				// error event after a 2xx header: treat it like any
				// other retryable upstream failure and rotate.
				lastStatus = resp.StatusCode
				lastBody = []byte("stream ended without content")
				continue
			}

			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			d.pool.MarkSuccess(picked.Email)
			return &Result{
				StatusCode:  resp.StatusCode,
				Body:        io.NopCloser(bytes.NewReader(respBody)),
				Email:       picked.Email,
				MappedModel: req.MappedModel,
			}, nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastStatus = resp.StatusCode
		lastBody = respBody

		decision := retry.Classify(resp.StatusCode, respBody, attempt, resp.Header.Get("Retry-After"))
		switch decision.Outcome {
		case retry.OutcomeQuotaExhausted:
			d.pool.MarkRateLimited(picked.Email, req.RequestType, resp.StatusCode, attempt, resp.Header.Get("Retry-After"), respBody, req.MappedModel)
			return &Result{StatusCode: resp.StatusCode, Body: io.NopCloser(bytes.NewReader(respBody)), Email: picked.Email, MappedModel: req.MappedModel}, nil
		case retry.OutcomeTerminal:
			return &Result{StatusCode: resp.StatusCode, Body: io.NopCloser(bytes.NewReader(respBody)), Email: picked.Email, MappedModel: req.MappedModel}, nil
		case retry.OutcomeRateLimited, retry.OutcomeAuth:
			d.pool.MarkRateLimited(picked.Email, req.RequestType, resp.StatusCode, attempt, resp.Header.Get("Retry-After"), respBody, req.MappedModel)
			select {
			case <-time.After(decision.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
	}

	return nil, ErrAllAttemptsFailed{Attempts: maxAttempts, LastStatus: lastStatus, LastBody: lastBody}
}

// acceptStream implements the §4.6 PEEK phase: pull the first SSE event
// block with an overall 60 s deadline, skipping heartbeat/comment lines;
// if an error event appears or the stream ends empty, report not-ok so
// the caller rotates accounts; otherwise splice the peeked bytes back
// onto the stream and hand it to the client.
func (d *Dispatcher) acceptStream(ctx context.Context, resp *http.Response, picked *pool.PickedCredential, mappedModel string) (bool, *Result, error) {
	peekCtx, cancel := context.WithTimeout(ctx, peekDeadline)
	defer cancel()

	reader := bufio.NewReader(resp.Body)
	peeked, isError, err := peekFirstEvent(peekCtx, reader)
	if err != nil {
		resp.Body.Close()
		return false, nil, nil
	}
	if isError || len(peeked) == 0 {
		resp.Body.Close()
		return false, nil, nil
	}

	d.pool.MarkSuccess(picked.Email)
	spliced := io.MultiReader(bytes.NewReader(peeked), reader)
	return true, &Result{
		StatusCode:  resp.StatusCode,
		Body:        readCloser{Reader: spliced, closer: resp.Body},
		Email:       picked.Email,
		MappedModel: mappedModel,
	}, nil
}

type peekOutcome struct {
	data    []byte
	isError bool
	err     error
}

// peekFirstEvent reads line by line until one full blank-line-terminated
// SSE event block is available, skipping ':'-prefixed heartbeats and
// 'data: :' comment lines. It returns the raw bytes read (so they can be
// spliced back onto the stream) and whether the block was an error event.
// The blocking read runs on a single background goroutine so the overall
// 60 s deadline can be enforced even though io.Reader has no native
// cancellation; a deadline-expiry abandons that goroutine to finish
// draining on its own.
func peekFirstEvent(ctx context.Context, r *bufio.Reader) ([]byte, bool, error) {
	result := make(chan peekOutcome, 1)

	go func() {
		var buf bytes.Buffer
		sawContent := false
		for {
			line, err := r.ReadString('\n')
			buf.WriteString(line)
			if err != nil {
				if err == io.EOF {
					result <- peekOutcome{data: buf.Bytes()}
					return
				}
				result <- peekOutcome{data: buf.Bytes(), err: err}
				return
			}

			trimmed := strings.TrimRight(line, "\r\n")
			if strings.HasPrefix(trimmed, ":") || trimmed == "data: :" {
				continue
			}
			if strings.Contains(trimmed, "event: error") {
				result <- peekOutcome{data: buf.Bytes(), isError: true}
				return
			}
			if trimmed != "" {
				sawContent = true
			}
			if trimmed == "" && sawContent {
				result <- peekOutcome{data: buf.Bytes()}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case out := <-result:
		return out.data, out.isError, out.err
	}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc readCloser) Close() error { return rc.closer.Close() }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
