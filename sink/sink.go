// Package sink pushes batched metric samples to the remote time-series store
// and reads last-known values back for restart recovery.
//
// Writes are best-effort by design: one retry, then the batch is dropped. A
// persistent local queue is deliberately avoided so an extended store outage
// cannot grow memory without bound.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/observability"
)

var (
	flushesTotal = observability.SinkFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xrplmon",
			Subsystem: "sink",
			Name:      "flushes_total",
			Help:      "Total flush attempts to the remote store by result",
		},
		[]string{"result"},
	)

	samplesDropped = observability.SinkFactory.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xrplmon",
			Subsystem: "sink",
			Name:      "samples_dropped_total",
			Help:      "Samples dropped after the retried flush also failed",
		},
	)
)

// Sample is one named, labeled, timestamped value bound for the store.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
	At     time.Time
}

// Config configures the sink.
type Config struct {
	// WriteURL is the store's exposition-format import endpoint.
	WriteURL string

	// FlushInterval is the cadence of the background flush loop.
	FlushInterval time.Duration

	// DefaultLabels are merged into every sample (sample labels win).
	DefaultLabels map[string]string

	// RequestTimeout bounds one write request.
	RequestTimeout time.Duration
}

// Sink batches samples in memory and flushes them over HTTP.
type Sink struct {
	logger     logging.Logger
	config     Config
	httpClient *http.Client

	mu    sync.Mutex
	batch []Sample
}

// New builds a sink. Run starts the background flush loop; Write and Flush
// may also be used directly.
func New(logger logging.Logger, config Config) *Sink {
	if config.FlushInterval == 0 {
		config.FlushInterval = 10 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	return &Sink{
		logger:     logging.ForComponent(logger, logging.ComponentSink),
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
	}
}

// Write appends samples to the current batch.
func (s *Sink) Write(samples ...Sample) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	s.batch = append(s.batch, samples...)
	s.mu.Unlock()
}

// Run flushes on the configured interval until the context ends, with one
// final flush on the way out.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout)
			s.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush serializes the pending batch and posts it to the store. On failure it
// retries exactly once, then drops the batch and logs: metrics are a side
// channel and must never block stream processing or polling.
func (s *Sink) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	body := s.encode(batch)

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = s.post(ctx, body); err == nil {
			flushesTotal.WithLabelValues("success").Inc()
			return
		}
		flushesTotal.WithLabelValues("failure").Inc()
	}

	samplesDropped.Add(float64(len(batch)))
	s.logger.Warn().
		Err(err).
		Int("samples", len(batch)).
		Msg("dropping batch after retried flush failed")
}

func (s *Sink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WriteURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build store write: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("store write: HTTP %d", resp.StatusCode)
	}
	return nil
}

// encode renders the batch in the store's line-based exposition format:
// name{label="value",...} value timestamp_ms
func (s *Sink) encode(batch []Sample) []byte {
	var buf bytes.Buffer
	for _, sample := range batch {
		buf.WriteString(EncodeSample(sample, s.config.DefaultLabels))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// EncodeSample renders one sample as an exposition line. Labels are emitted
// in sorted order so output is deterministic.
func EncodeSample(sample Sample, defaults map[string]string) string {
	labels := make(map[string]string, len(defaults)+len(sample.Labels))
	for k, v := range defaults {
		labels[k] = v
	}
	for k, v := range sample.Labels {
		labels[k] = v
	}

	var b strings.Builder
	b.WriteString(sample.Name)
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(escapeLabelValue(labels[k]))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	fmt.Fprintf(&b, " %v %d", sample.Value, sample.At.UnixMilli())
	return b.String()
}

func escapeLabelValue(v string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return replacer.Replace(v)
}
