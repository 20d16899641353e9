// Package pipeline wires one publishing cycle: every enabled provider is
// processed in turn and the archives of the providers that succeeded are
// finalized and published.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JonMunkholm/biopipe/internal/dwca"
	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/tracing"
)

var tracer = otel.Tracer("biopipe/pipeline")

// Cycle and provider statuses.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ProviderProcessor processes one provider's verbatim records.
type ProviderProcessor interface {
	ProcessProvider(ctx context.Context, provider *observation.DataProvider, mode processing.RunMode) (processing.Result, error)
}

// Exporter collects fragments during a cycle and publishes archives at its end.
// Abort discards the fragments of a cycle that will not be finalized.
type Exporter interface {
	Begin(ctx context.Context) (string, error)
	Finalize(ctx context.Context, providers []*observation.DataProvider, info *dwca.ProcessInfo) ([]string, error)
	Abort(ctx context.Context) error
}

// ProviderRun is one provider's outcome within a cycle.
type ProviderRun struct {
	processing.Result
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Summary describes a finished cycle.
type Summary struct {
	ID        string        `json:"id"`
	Mode      string        `json:"mode"`
	Status    string        `json:"status"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Providers []ProviderRun `json:"providers"`
	Published []string      `json:"published"`
	Error     string        `json:"error,omitempty"`
}

// Cycle runs publishing cycles. Run is not meant to be called concurrently;
// the scheduler serializes it.
type Cycle struct {
	processor ProviderProcessor
	exporter  Exporter
	providers []*observation.DataProvider
	mode      processing.RunMode
	metrics   *metrics.Collector
	now       func() time.Time

	mu   sync.RWMutex
	last *Summary
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithExporter enables archive export. Without it cycles only process.
func WithExporter(e Exporter) Option { return func(c *Cycle) { c.exporter = e } }

func WithMetrics(m *metrics.Collector) Option { return func(c *Cycle) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Cycle) { c.now = now } }

// NewCycle returns a Cycle over the enabled providers in providers.
func NewCycle(processor ProviderProcessor, providers []*observation.DataProvider, mode processing.RunMode, opts ...Option) *Cycle {
	c := &Cycle{
		processor: processor,
		mode:      mode,
		now:       time.Now,
	}
	for _, p := range providers {
		if p.Enabled {
			c.providers = append(c.providers, p)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the providers taking part in cycles.
func (c *Cycle) Providers() []*observation.DataProvider {
	return c.providers
}

// Last returns the summary of the most recent cycle, or nil.
func (c *Cycle) Last() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run executes one cycle. Providers that fail are recorded and skipped; their
// published archives stay as they were. Cancellation stops the cycle before
// anything is published, discards the cycle's fragments and returns an error
// wrapping processing.ErrAborted.
func (c *Cycle) Run(ctx context.Context) (sum *Summary, err error) {
	ctx, span := tracer.Start(ctx, "publishing-cycle")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	sum = &Summary{Mode: c.mode.String(), Start: c.now()}
	defer func() {
		sum.End = c.now()
		if err != nil {
			sum.Error = err.Error()
			if sum.Status == "" {
				sum.Status = StatusFailed
			}
		}
		c.metrics.RecordCycle(sum.End.Sub(sum.Start), sum.End)
		c.mu.Lock()
		c.last = sum
		c.mu.Unlock()
	}()

	if c.exporter != nil {
		if sum.ID, err = c.exporter.Begin(ctx); err != nil {
			return sum, fmt.Errorf("begin export: %w", err)
		}
	} else {
		sum.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("cycle_id", sum.ID))
	ctx = logging.WithCycleID(ctx, sum.ID)
	log := logging.FromContext(ctx)
	log.Info("cycle started", "mode", sum.Mode, "providers", len(c.providers))

	var succeeded []*observation.DataProvider
	for _, p := range c.providers {
		res, perr := c.processor.ProcessProvider(ctx, p, c.mode)
		run := ProviderRun{Result: res, Status: StatusSuccess}
		if run.Provider == "" {
			run.Provider = p.Identifier
		}
		switch {
		case processing.IsAborted(perr):
			run.Status = StatusCancelled
			sum.Providers = append(sum.Providers, run)
			sum.Status = StatusCancelled
			log.Warn("cycle cancelled", "provider", p.Identifier)
			if c.exporter != nil {
				if aerr := c.exporter.Abort(context.WithoutCancel(ctx)); aerr != nil {
					log.Error("discard fragments failed", "error", aerr)
				}
			}
			return sum, abortedErr(perr)
		case perr != nil:
			run.Status = StatusFailed
			run.Error = perr.Error()
			log.Error("provider failed", "provider", p.Identifier, "error", perr)
		default:
			succeeded = append(succeeded, p)
		}
		sum.Providers = append(sum.Providers, run)
	}

	sum.Status = cycleStatus(sum.Providers)
	if c.exporter != nil {
		info := processInfo(sum, c.now())
		published, ferr := c.exporter.Finalize(ctx, succeeded, info)
		sum.Published = published
		if ferr != nil {
			if processing.IsAborted(ferr) {
				sum.Status = StatusCancelled
				return sum, abortedErr(ferr)
			}
			sum.Status = StatusFailed
			return sum, fmt.Errorf("finalize archives: %w", ferr)
		}
	}

	log.Info("cycle finished",
		"status", sum.Status,
		"published", len(sum.Published),
		"duration_ms", c.now().Sub(sum.Start).Milliseconds(),
	)
	return sum, nil
}

func abortedErr(err error) error {
	if errors.Is(err, processing.ErrAborted) {
		return err
	}
	return fmt.Errorf("%w: %w", processing.ErrAborted, err)
}

// cycleStatus is failed only when no provider succeeded.
func cycleStatus(runs []ProviderRun) string {
	if len(runs) == 0 {
		return StatusSuccess
	}
	for _, r := range runs {
		if r.Status == StatusSuccess {
			return StatusSuccess
		}
	}
	return StatusFailed
}

func processInfo(sum *Summary, end time.Time) *dwca.ProcessInfo {
	info := &dwca.ProcessInfo{ID: sum.ID, Start: sum.Start, End: end, Status: sum.Status}
	for _, r := range sum.Providers {
		info.Providers = append(info.Providers, dwca.ProviderSummary{
			Identifier:     r.Provider,
			Status:         r.Status,
			PublicCount:    r.PublicCount,
			ProtectedCount: r.ProtectedCount,
			InvalidCount:   r.InvalidCount,
			Start:          r.Start,
			End:            r.End,
		})
	}
	return info
}
