// Package processing turns a provider's verbatim records into stored
// canonical observations.
//
// ProcessProvider splits the provider's verbatim id range into fixed size
// batches and runs them under a BatchLimiter. Each batch is fetched, mapped,
// split into a public and a protected stream, validated, stored and written
// to archive fragments. A failing batch is logged and contributes nothing;
// cancellation stops the whole run and is returned as ErrAborted.
package processing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JonMunkholm/biopipe/internal/diffusion"
	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/tracing"
	"github.com/JonMunkholm/biopipe/internal/validation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

var tracer = otel.Tracer("biopipe/processing")

// RunMode selects how existing stored observations are replaced.
type RunMode int

const (
	// Incremental deletes stored observations with matching keys before each batch insert.
	Incremental RunMode = iota
	// Full clears all of the provider's stored observations once before processing.
	Full
)

func (m RunMode) String() string {
	if m == Full {
		return "full"
	}
	return "incremental"
}

// ParseRunMode parses "full" or "incremental".
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return Full, nil
	case "incremental", "":
		return Incremental, nil
	}
	return Incremental, fmt.Errorf("unknown run mode %q", s)
}

// VerbatimRepository reads a provider's verbatim records by id range.
type VerbatimRepository interface {
	GetIDRange(ctx context.Context, providerID int) (min, max int64, err error)
	GetBatch(ctx context.Context, providerID int, start, end int64) ([]verbatim.Record, error)
}

// ObservationRepository stores canonical observations. protected selects the
// access-restricted store.
type ObservationRepository interface {
	AddMany(ctx context.Context, obs []*observation.Observation, protected bool) (int, error)
	DeleteByOccurrenceIDs(ctx context.Context, ids []string, protected bool) (int64, error)
	DeleteProviderData(ctx context.Context, providerID int, protected bool) (int64, error)
}

// FragmentWriter receives the valid public observations of each batch.
type FragmentWriter interface {
	WriteObservations(ctx context.Context, provider *observation.DataProvider, batchID string, obs []*observation.Observation) error
}

// AreaEnricher fills administrative areas from an observation's coordinate.
type AreaEnricher interface {
	Enrich(obs *observation.Observation)
}

// Options configures a Processor.
type Options struct {
	// NoOfThreads is the batch concurrency used when the provider sets none.
	NoOfThreads int
	// BatchSize is the batch size used when the provider sets none.
	BatchSize int
	// BatchMaxWait bounds how long a batch waits for a permit. Zero waits
	// until the context ends.
	BatchMaxWait time.Duration
	// Now is the clock used by the embargo policy. Defaults to time.Now.
	Now func() time.Time
}

// DefaultBatchSize is used when neither provider nor options set one.
const DefaultBatchSize = 10000

// Result summarises one provider run.
type Result struct {
	Provider string `json:"provider"`
	// PublicCount is the number of stored public observations, diffused
	// copies of protected observations included.
	PublicCount    int       `json:"publicCount"`
	ProtectedCount int       `json:"protectedCount"`
	InvalidCount   int       `json:"invalidCount"`
	DiffusedCount  int       `json:"diffusedCount"`
	Batches        int       `json:"batches"`
	FailedBatches  int       `json:"failedBatches"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// Processor runs provider processing. One Processor serves any number of
// providers, sequentially or concurrently.
type Processor struct {
	verbatim     VerbatimRepository
	observations ObservationRepository
	lookups      *Lookups
	mappers      *Mappers
	validator    *validation.Validator
	opts         Options

	fragments FragmentWriter
	embargo   EmbargoPolicy
	areas     AreaEnricher
	metrics   *metrics.Collector

	mu       sync.Mutex
	limiters map[string]*BatchLimiter
}

// Option sets an optional Processor collaborator.
type Option func(*Processor)

// WithFragments makes every batch write its valid public observations to w.
func WithFragments(w FragmentWriter) Option { return func(p *Processor) { p.fragments = w } }

// WithEmbargo sets the embargo policy. The default is NoEmbargo.
func WithEmbargo(e EmbargoPolicy) Option { return func(p *Processor) { p.embargo = e } }

// WithAreas enriches public observations with administrative areas.
func WithAreas(a AreaEnricher) Option { return func(p *Processor) { p.areas = a } }

// WithMetrics records batch metrics on c.
func WithMetrics(c *metrics.Collector) Option { return func(p *Processor) { p.metrics = c } }

// NewProcessor wires a Processor. Lookups must be loaded before the first run.
func NewProcessor(
	verbatimRepo VerbatimRepository,
	observationRepo ObservationRepository,
	lookups *Lookups,
	mappers *Mappers,
	validator *validation.Validator,
	opts Options,
	options ...Option,
) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Processor{
		verbatim:     verbatimRepo,
		observations: observationRepo,
		lookups:      lookups,
		mappers:      mappers,
		validator:    validator,
		opts:         opts,
		embargo:      NoEmbargo{},
		limiters:     make(map[string]*BatchLimiter),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// ProcessProvider processes every verbatim record of provider.
//
// The returned Result holds partial counts when err is non-nil. Batch
// failures, including a batch that waited longer than BatchMaxWait for a
// permit, do not make err non-nil; only cancellation (ErrAborted), lookup
// failures and failures before dispatch do.
func (p *Processor) ProcessProvider(ctx context.Context, provider *observation.DataProvider, mode RunMode) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "process-provider")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
	span.SetAttributes(
		attribute.String("provider", provider.Identifier),
		attribute.String("mode", mode.String()),
	)

	ctx = logging.WithProvider(ctx, provider.Identifier)
	log := logging.FromContext(ctx)
	res = Result{Provider: provider.Identifier, Start: time.Now()}
	defer func() { res.End = time.Now() }()

	if err = ctx.Err(); err != nil {
		return res, aborted(err)
	}
	if !p.lookups.Loaded() {
		if err = p.lookups.Load(ctx); err != nil {
			return res, err
		}
	}
	mapper, err := p.mappers.For(provider, p.lookups)
	if err != nil {
		return res, err
	}

	minID, maxID, err := p.verbatim.GetIDRange(ctx, provider.ID)
	if err != nil {
		if ctx.Err() != nil {
			return res, aborted(ctx.Err())
		}
		return res, fmt.Errorf("get id range: %w", err)
	}

	if mode == Full {
		if err = p.clearProvider(ctx, provider); err != nil {
			return res, err
		}
	}
	if maxID < minID || maxID == 0 {
		log.Info("no verbatim records", "mode", mode.String())
		return res, nil
	}

	batchSize := int64(firstPositive(provider.BatchSize, p.opts.BatchSize, DefaultBatchSize))
	threads := firstPositive(provider.NoOfThreads, p.opts.NoOfThreads, DefaultNoOfThreads)
	limiter := p.limiterFor(provider.Identifier, threads)
	defer p.dropLimiter(provider.Identifier)

	log.Info("processing started",
		"mode", mode.String(),
		"min_id", minID,
		"max_id", maxID,
		"batch_size", batchSize,
		"threads", threads,
	)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for start := minID; start <= maxID; start += batchSize {
		end := min(start+batchSize-1, maxID)
		if aerr := limiter.Acquire(ctx); aerr != nil {
			if errors.Is(aerr, ErrLimiterTimeout) {
				// The range is skipped; a later incremental run picks it up.
				mu.Lock()
				res.Batches++
				res.FailedBatches++
				mu.Unlock()
				log.Error("batch skipped", "start", start, "end", end, "error", aerr)
				continue
			}
			err = aerr
			break
		}
		mu.Lock()
		res.Batches++
		mu.Unlock()

		wg.Add(1)
		go func(start, end int64) {
			defer wg.Done()
			defer limiter.Release()

			br, berr := p.processBatch(ctx, provider, mapper, mode, start, end)

			mu.Lock()
			defer mu.Unlock()
			if berr != nil {
				if ctx.Err() == nil {
					res.FailedBatches++
					log.Error("batch failed", "start", start, "end", end, "error", berr)
				}
				return
			}
			res.PublicCount += br.public
			res.ProtectedCount += br.protected
			res.InvalidCount += br.invalid
			res.DiffusedCount += br.diffused
		}(start, end)
	}
	wg.Wait()

	if ctx.Err() != nil {
		log.Warn("processing aborted", "batches", res.Batches)
		return res, aborted(ctx.Err())
	}
	if err != nil {
		// Acquire failed for a reason other than cancellation.
		return res, fmt.Errorf("acquire batch slot: %w", err)
	}

	log.Info("processing finished",
		"public", res.PublicCount,
		"protected", res.ProtectedCount,
		"invalid", res.InvalidCount,
		"batches", res.Batches,
		"failed_batches", res.FailedBatches,
		"duration_ms", time.Since(res.Start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) clearProvider(ctx context.Context, provider *observation.DataProvider) error {
	for _, protected := range []bool{false, true} {
		n, err := p.observations.DeleteProviderData(ctx, provider.ID, protected)
		if err != nil {
			if ctx.Err() != nil {
				return aborted(ctx.Err())
			}
			return fmt.Errorf("clear provider data: %w", err)
		}
		logging.FromContext(ctx).Debug("cleared provider data", "protected", protected, "deleted", n)
	}
	return nil
}

type batchResult struct {
	public, protected, invalid, diffused int
}

func (p *Processor) processBatch(
	ctx context.Context,
	provider *observation.DataProvider,
	mapper Mapper,
	mode RunMode,
	start, end int64,
) (br batchResult, err error) {
	ctx, span := tracer.Start(ctx, "process-batch")
	began := time.Now()
	defer func() {
		p.metrics.RecordBatch(provider.Identifier, time.Since(began), err)
		tracing.RecordAnyErrorAndEndSpan(err, span)
	}()
	span.SetAttributes(
		attribute.String("provider", provider.Identifier),
		attribute.Int64("start", start),
		attribute.Int64("end", end),
	)

	if err = ctx.Err(); err != nil {
		return br, err
	}

	records, err := p.verbatim.GetBatch(ctx, provider.ID, start, end)
	if err != nil {
		return br, fmt.Errorf("fetch verbatim: %w", err)
	}

	now := p.opts.Now()
	var (
		public, protected []*observation.Observation
		keys              []string
	)
	for _, rec := range records {
		obs, merr := mapper.Map(rec)
		if merr != nil {
			br.invalid++
			logging.FromContext(ctx).Debug("mapping failed", "verbatim_id", rec.ID, "error", merr)
			continue
		}
		keys = append(keys, obs.ID)
		if !obs.IsProtected() {
			p.enrich(obs)
			public = append(public, obs)
			continue
		}
		// Only a valid original may be diffused; projecting an invalid
		// coordinate yields a plausible but fabricated point.
		if p.validator.ValidateFirst(obs) != nil {
			br.invalid++
			continue
		}
		protected = append(protected, obs)
		if p.embargo.Excluded(obs, now) {
			continue
		}
		d := diffusion.DiffuseProtected(obs)
		if p.areas != nil {
			p.areas.Enrich(d)
		}
		public = append(public, d)
		br.diffused++
	}

	validPublic, invalidPublic := p.validator.Partition(public)
	br.invalid += invalidPublic

	if err = ctx.Err(); err != nil {
		return batchResult{}, err
	}

	// Every mapped id is cleared from both stores, so a record that turned
	// protected, embargoed or invalid leaves no stale copy behind.
	if mode == Incremental {
		if err = p.deleteExisting(ctx, keys, false); err != nil {
			return batchResult{}, err
		}
		if err = p.deleteExisting(ctx, keys, true); err != nil {
			return batchResult{}, err
		}
	}

	if len(validPublic) > 0 {
		if br.public, err = p.observations.AddMany(ctx, validPublic, false); err != nil {
			return batchResult{}, fmt.Errorf("store public: %w", err)
		}
	}
	if len(protected) > 0 {
		if br.protected, err = p.observations.AddMany(ctx, protected, true); err != nil {
			return batchResult{}, fmt.Errorf("store protected: %w", err)
		}
	}

	if p.fragments != nil && len(validPublic) > 0 {
		batchID := strconv.FormatInt(start, 10)
		if err = p.fragments.WriteObservations(ctx, provider, batchID, validPublic); err != nil {
			return batchResult{}, fmt.Errorf("write fragments: %w", err)
		}
	}

	p.metrics.RecordStored(provider.Identifier, metrics.StreamPublic, br.public)
	p.metrics.RecordStored(provider.Identifier, metrics.StreamProtected, br.protected)
	p.metrics.RecordInvalid(provider.Identifier, br.invalid)
	p.metrics.RecordDiffused(provider.Identifier, br.diffused)
	return br, nil
}

// enrich fills areas of a public observation that carries none.
func (p *Processor) enrich(obs *observation.Observation) {
	if p.areas == nil || obs.Location == nil || obs.Location.County != nil {
		return
	}
	p.areas.Enrich(obs)
}

func (p *Processor) deleteExisting(ctx context.Context, ids []string, protected bool) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.observations.DeleteByOccurrenceIDs(ctx, ids, protected); err != nil {
		return fmt.Errorf("delete existing (protected=%t): %w", protected, err)
	}
	return nil
}

func (p *Processor) limiterFor(identifier string, n int) *BatchLimiter {
	l := NewBatchLimiter(n, p.opts.BatchMaxWait)
	l.OnChange(func(active int) { p.metrics.SetActiveBatches(identifier, active) })

	p.mu.Lock()
	p.limiters[identifier] = l
	p.mu.Unlock()
	return l
}

func (p *Processor) dropLimiter(identifier string) {
	p.mu.Lock()
	delete(p.limiters, identifier)
	p.mu.Unlock()
}

// Status returns the limiter state of every provider currently processing.
func (p *Processor) Status() map[string]LimiterStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]LimiterStatus, len(p.limiters))
	for id, l := range p.limiters {
		out[id] = l.Status()
	}
	return out
}

// WaitForDrain blocks until no batch of any provider holds a slot.
func (p *Processor) WaitForDrain(ctx context.Context) error {
	p.mu.Lock()
	limiters := make([]*BatchLimiter, 0, len(p.limiters))
	for _, l := range p.limiters {
		limiters = append(limiters, l)
	}
	p.mu.Unlock()

	var errs []error
	for _, l := range limiters {
		if err := l.WaitForDrain(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
