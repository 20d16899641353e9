package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/report"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

// ErrUnknownProvider is returned for an identifier missing from the catalog.
var ErrUnknownProvider = errors.New("unknown data provider")

// ReportCreator builds a report from a verbatim cursor.
type ReportCreator interface {
	Create(ctx context.Context, provider *observation.DataProvider, cursor verbatim.Cursor, opts report.Options) (*report.Report, error)
}

// CursorFunc opens a forward cursor over a provider's verbatim records.
type CursorFunc func(providerID, batchSize int) verbatim.Cursor

// Reporter runs validation reports for catalog providers by identifier.
type Reporter struct {
	creator   ReportCreator
	cursors   CursorFunc
	providers map[string]*observation.DataProvider
	defaults  report.Options
	timeout   time.Duration
}

// NewReporter indexes providers by identifier. Disabled providers can still
// be reported on.
func NewReporter(creator ReportCreator, cursors CursorFunc, providers []*observation.DataProvider, defaults report.Options, timeout time.Duration) *Reporter {
	r := &Reporter{
		creator:   creator,
		cursors:   cursors,
		providers: make(map[string]*observation.DataProvider, len(providers)),
		defaults:  defaults,
		timeout:   timeout,
	}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Identifier)] = p
	}
	return r
}

// Defaults returns the options applied when a request sets none.
func (r *Reporter) Defaults() report.Options {
	return r.defaults
}

// Report creates a report for the provider named identifier.
func (r *Reporter) Report(ctx context.Context, identifier string, opts report.Options) (*report.Report, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, identifier)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cursor := r.cursors(p.ID, reportBatchSize(p, opts))
	defer cursor.Close()
	return r.creator.Create(ctx, p, cursor, opts)
}

// reportBatchSize never fetches more than the read budget in one page.
func reportBatchSize(p *observation.DataProvider, opts report.Options) int {
	size := verbatim.DefaultBatchSize
	if p.BatchSize > 0 && p.BatchSize < size {
		size = p.BatchSize
	}
	if opts.MaxNrObservationsToRead > 0 && opts.MaxNrObservationsToRead < size {
		size = opts.MaxNrObservationsToRead
	}
	return size
}
