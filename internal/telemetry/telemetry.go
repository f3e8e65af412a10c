// Package telemetry emits best-effort pipeline events to an HTTP collector.
// Emission never blocks or fails a run.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Event describes one pipeline state transition
type Event struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	ElapsedMs float64   `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Emitter accepts events without blocking the caller
type Emitter interface {
	Emit(ev Event)
	// Flush waits up to timeout for in-flight events
	Flush(timeout time.Duration)
}

// Noop discards every event
type Noop struct{}

func (Noop) Emit(Event) {}
func (Noop) Flush(time.Duration) {}

// HTTPEmitter posts events as JSON to a collector endpoint
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

// NewRateLimiter allows eventsPerSecond with an equal burst
func NewRateLimiter(eventsPerSecond float64) *rate.Limiter {
	burst := int(eventsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}

// NewHTTPEmitter creates an emitter for endpoint
func NewHTTPEmitter(endpoint string, eventsPerSecond float64, log logrus.FieldLogger) *HTTPEmitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPEmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		limiter:  NewRateLimiter(eventsPerSecond),
		log:      log,
	}
}

// Resolve returns an HTTP emitter when endpoint is a valid http(s) URL
func Resolve(endpoint string, eventsPerSecond float64, log logrus.FieldLogger) types.Capability[Emitter] {
	if endpoint == "" {
		return types.Unavailable[Emitter]("no telemetry endpoint configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.Unavailable[Emitter](fmt.Sprintf("invalid telemetry endpoint %q", endpoint))
	}
	if eventsPerSecond <= 0 {
		eventsPerSecond = 10
	}
	return types.Available[Emitter](NewHTTPEmitter(endpoint, eventsPerSecond, log))
}

// Or returns the available emitter or a no-op
func Or(c types.Capability[Emitter]) Emitter {
	if e, ok := c.Get(); ok {
		return e
	}
	return Noop{}
}

// Emit posts ev in the background. Events beyond the rate budget are dropped.
func (h *HTTPEmitter) Emit(ev Event) {
	if !h.limiter.Allow() {
		h.log.WithField("stage", ev.Stage).Debug("telemetry event dropped by rate limit")
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.post(ev); err != nil {
			h.log.WithError(err).Debug("telemetry post failed")
		}
	}()
}

func (h *HTTPEmitter) post(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}

// Flush implements Emitter
func (h *HTTPEmitter) Flush(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		h.log.Debug("telemetry flush timed out")
	}
}
