package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/tracing"
	"github.com/JonMunkholm/biopipe/internal/validation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

var tracer = otel.Tracer("biopipe/report")

// ctx is checked at every batch and this often within a batch.
const recordCheckInterval = 100

// Engine creates reports. It is safe for concurrent use; every Create keeps
// its own state.
type Engine struct {
	lookups   *processing.Lookups
	mappers   *processing.Mappers
	validator *validation.Validator
	metrics   *metrics.Collector
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithMetrics(m *metrics.Collector) Option { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine loads the lookups the mappers need. A load failure is returned
// wrapped in processing.ErrLookupUnavailable.
func NewEngine(ctx context.Context, lookups *processing.Lookups, mappers *processing.Mappers, validator *validation.Validator, opts ...Option) (*Engine, error) {
	if err := lookups.Load(ctx); err != nil {
		return nil, err
	}
	e := &Engine{
		lookups:   lookups,
		mappers:   mappers,
		validator: validator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// run is the mutable state of one Create call.
type run struct {
	opts   Options
	report *Report

	histograms []*histogram
	taxa       map[int]*TaxonRollup
}

func newRun(opts Options) *run {
	r := &run{
		opts: opts,
		report: &Report{
			ID:                uuid.NewString(),
			Options:           opts,
			DefectCounts:      make(map[validation.DefectType]int),
			RedlistCategories: make(map[string]int),
		},
		taxa: make(map[int]*TaxonRollup),
	}
	for _, f := range vocabularyFields {
		r.histograms = append(r.histograms, newHistogram(f, opts.MaxVerbatimValuesPerBucket))
	}
	return r
}

// Create reads at most opts.MaxNrObservationsToRead records from cursor and
// returns the report. Records that fail to map are skipped and counted in
// NrFailedToMap. The cursor is not closed.
func (e *Engine) Create(ctx context.Context, provider *observation.DataProvider, cursor verbatim.Cursor, opts Options) (rep *Report, err error) {
	ctx, span := tracer.Start(ctx, "create-report")
	span.SetAttributes(attribute.String("provider", provider.Identifier))
	began := time.Now()
	defer func() {
		e.metrics.RecordReport(time.Since(began), err)
		tracing.RecordAnyErrorAndEndSpan(err, span)
	}()

	ctx = logging.WithProvider(ctx, provider.Identifier)
	mapper, err := e.mappers.For(provider, e.lookups)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	r := newRun(opts)
	r.report.ProviderID = provider.ID
	r.report.ProviderIdentifier = provider.Identifier
	r.report.Created = e.now()

scan:
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", processing.ErrAborted, err)
		}
		if r.report.NrObservationsRead >= opts.MaxNrObservationsToRead {
			r.report.BudgetReached = true
			break
		}
		batch, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read verbatim: %w", err)
		}

		for i, rec := range batch {
			if i > 0 && i%recordCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("%w: %w", processing.ErrAborted, err)
				}
			}
			if r.report.NrObservationsRead >= opts.MaxNrObservationsToRead {
				r.report.BudgetReached = true
				break scan
			}
			r.report.NrObservationsRead++
			e.add(ctx, r, rec, mapper)
		}
	}

	r.finish()
	r.report.Duration = time.Since(began).String()
	logging.FromContext(ctx).Info("report created",
		"report_id", r.report.ID,
		"read", r.report.NrObservationsRead,
		"valid", r.report.NrValidObservations,
		"invalid", r.report.NrInvalidObservations,
		"failed_to_map", r.report.NrFailedToMap,
	)
	return r.report, nil
}

func (e *Engine) add(ctx context.Context, r *run, rec verbatim.Record, mapper processing.Mapper) {
	obs, err := mapper.Map(rec)
	if err != nil {
		r.report.NrFailedToMap++
		logging.FromContext(ctx).Debug("mapping failed", "verbatim_id", rec.ID, "error", err)
		return
	}

	res := e.validator.Validate(obs)
	if res.Valid {
		r.report.NrValidObservations++
		if len(r.report.ValidSamples) < r.opts.NrValidObservationsInReport {
			r.report.ValidSamples = append(r.report.ValidSamples, newSample(rec, obs, nil))
		}
	} else {
		r.report.NrInvalidObservations++
		for _, d := range res.Defects {
			r.report.DefectCounts[d.Type]++
		}
		if len(r.report.InvalidSamples) < r.opts.NrInvalidObservationsInReport {
			r.report.InvalidSamples = append(r.report.InvalidSamples, newSample(rec, obs, res.Defects))
		}
	}

	for _, h := range r.histograms {
		h.add(rec, obs)
	}
	r.addTaxon(obs)
}

func newSample(rec verbatim.Record, obs *observation.Observation, defects []validation.Defect) Sample {
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return Sample{VerbatimID: rec.ID, Verbatim: fields, Observation: obs, Defects: defects}
}

func (r *run) addTaxon(obs *observation.Observation) {
	t := obs.Taxon
	if t == nil || t.ID <= 0 {
		return
	}
	roll, ok := r.taxa[t.ID]
	if !ok {
		roll = &TaxonRollup{
			TaxonID:         t.ID,
			ScientificName:  t.ScientificName,
			RedlistCategory: t.RedlistCategory,
			ProtectedByLaw:  t.ProtectedByLaw,
			ProtectionLevel: observation.ClampProtectionLevel(t.ProtectionLevel),
		}
		r.taxa[t.ID] = roll
	}
	roll.Count++

	if t.RedlistCategory != "" {
		r.report.RedlistCategories[t.RedlistCategory]++
	}
	if t.ProtectedByLaw {
		r.report.ProtectedByLawCount++
	}
}

func (r *run) finish() {
	for _, h := range r.histograms {
		r.report.Vocabularies = append(r.report.Vocabularies, h.result())
	}

	r.report.Taxa = make([]TaxonRollup, 0, len(r.taxa))
	for _, t := range r.taxa {
		r.report.Taxa = append(r.report.Taxa, *t)
	}
	sort.Slice(r.report.Taxa, func(i, j int) bool {
		if r.report.Taxa[i].Count != r.report.Taxa[j].Count {
			return r.report.Taxa[i].Count > r.report.Taxa[j].Count
		}
		return r.report.Taxa[i].TaxonID < r.report.Taxa[j].TaxonID
	})
}
