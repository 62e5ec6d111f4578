// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs per-document pipeline stages across a bounded worker
// pool, distributing work over multiple service credentials with independent
// per-credential concurrency caps, and retrying transient failures with
// exponential backoff plus jitter.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/survey-engine/internal/llm"
)

// defaultPerKeyCap bounds the derived per-credential concurrency.
const defaultPerKeyCap = 20

// Pool assigns documents to credentials round-robin and enforces a
// per-credential in-flight cap, so the global worker count can be much
// larger than any one credential's rate limit allows.
type Pool struct {
	keys    []string
	sems    []*semaphore.Weighted
	workers int
	perKey  int
}

// NewPool builds a pool over the given credentials. When perKey is zero the
// cap is derived as workers/len(keys), clamped to [1, 20]. An empty
// credential list is a run-level configuration error.
func NewPool(keys []string, workers, perKey int) (*Pool, error) {
	if len(keys) == 0 {
		return nil, errors.New("no credentials configured")
	}
	if workers < 1 {
		workers = 1
	}
	if perKey <= 0 {
		perKey = workers / len(keys)
		if perKey > defaultPerKeyCap {
			perKey = defaultPerKeyCap
		}
		if perKey < 1 {
			perKey = 1
		}
	}

	sems := make([]*semaphore.Weighted, len(keys))
	for i := range keys {
		sems[i] = semaphore.NewWeighted(int64(perKey))
	}
	return &Pool{keys: keys, sems: sems, workers: workers, perKey: perKey}, nil
}

// Keys returns the number of credentials.
func (p *Pool) Keys() int { return len(p.keys) }

// PerKey returns the effective per-credential concurrency cap.
func (p *Pool) PerKey() int { return p.perKey }

// WithCredential runs fn with the credential assigned to document idx,
// holding that credential's semaphore for the duration. Backoff sleeps
// inside fn therefore count against the credential's cap, which keeps retry
// storms from re-saturating a rate-limited key.
func (p *Pool) WithCredential(ctx context.Context, idx int, fn func(apiKey string) error) error {
	k := idx % len(p.keys)
	if err := p.sems[k].Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sems[k].Release(1)
	return fn(p.keys[k])
}

// Status classifies one document's outcome.
type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFailed
)

// Outcome is the result of processing one document. Note is an optional
// stage-specific label (e.g. "moved_out") tallied in the summary.
type Outcome struct {
	Status Status
	ID     string
	Note   string
	Err    error
}

// Failure records one document that exhausted its retry budget or failed
// permanently.
type Failure struct {
	ID  string
	Err string
}

// Summary is the per-run result: explicit counts instead of shared mutable
// state, so reruns and tests stay independent.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Notes     map[string]int
	Failures  []Failure
}

// Total returns the number of documents processed.
func (s Summary) Total() int {
	return s.Succeeded + s.Skipped + s.Failed
}

// Run processes indices [0,n) across the pool's workers and aggregates
// outcomes. Completion order is whatever the pool yields; a failed document
// never blocks the others. Cancelling ctx stops feeding new work but lets
// in-flight documents finish.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, idx int) Outcome) Summary {
	summary := Summary{Notes: make(map[string]int)}
	if n <= 0 {
		return summary
	}

	workers := p.workers
	if workers > n {
		workers = n
	}

	indices := make(chan int)
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				results <- fn(ctx, idx)
			}
		}()
	}

	go func() {
		defer close(indices)
		for i := 0; i < n; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		switch out.Status {
		case StatusOK:
			summary.Succeeded++
			if out.Note != "" {
				summary.Notes[out.Note]++
			}
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
			msg := ""
			if out.Err != nil {
				msg = out.Err.Error()
			}
			summary.Failures = append(summary.Failures, Failure{ID: out.ID, Err: msg})
		}
	}
	return summary
}

// Report prints the failure list and the final counts in the batch style.
func (s Summary) Report(w io.Writer, verb string) {
	for _, f := range s.Failures {
		fmt.Fprintf(w, "failed  %s: %s\n", f.ID, f.Err)
	}
	fmt.Fprintf(w, "%s done: succeeded=%d, skipped=%d, failed=%d\n", verb, s.Succeeded, s.Skipped, s.Failed)
}

// backoffBase scales retry delays. Tests override this to avoid real sleeps.
var backoffBase = time.Second

const (
	backoffFactor = 1.6
	backoffJitter = 0.8
	backoffCap    = 60.0
)

// Retry runs fn up to maxRetries times, sleeping between attempts with
// exponential backoff (1.6^attempt seconds plus up to 0.8s of jitter, capped
// at 60s). Non-retryable errors abort immediately; the last error is
// returned once the budget is exhausted.
func Retry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt+1 >= maxRetries {
			return fmt.Errorf("after %d attempts: %w", maxRetries, err)
		}

		seconds := math.Pow(backoffFactor, float64(attempt)) + rand.Float64()*backoffJitter
		if seconds > backoffCap {
			seconds = backoffCap
		}
		delay := time.Duration(seconds * float64(backoffBase))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// retryable is implemented by error types that know their own transience
// (parse and validation errors from the annotation stage).
type retryable interface {
	Retryable() bool
}

// Retryable reports whether err is transient: rate limits, server errors,
// timeouts, connection failures, malformed JSON, or failed strict
// validation. Everything else is permanent for the document.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate", "429", "timeout", "timed out", "connection", "502", "503", "504"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
