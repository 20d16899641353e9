// Package verbatim models provider-native records before mapping and the
// forward-only cursors used to stream them in batches.
package verbatim

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Record is one raw provider row keyed by Darwin Core term name.
type Record struct {
	ID             int64
	DataProviderID int
	Fields         map[string]string
}

// Get returns the trimmed value for term and whether the term was present.
func (r Record) Get(term string) (string, bool) {
	v, ok := r.Fields[term]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Value returns the trimmed value for term, or "" when absent.
func (r Record) Value(term string) string {
	v, _ := r.Get(term)
	return v
}

// Builder assembles a Record with explicit setters.
type Builder struct {
	rec Record
}

// NewBuilder starts a record for the given provider row.
func NewBuilder(providerID int, id int64) *Builder {
	return &Builder{rec: Record{ID: id, DataProviderID: providerID, Fields: make(map[string]string)}}
}

// Set assigns term. Empty values are kept so reports can tell blank from absent.
func (b *Builder) Set(term, value string) *Builder {
	b.rec.Fields[term] = value
	return b
}

// Build returns the record.
func (b *Builder) Build() Record {
	return b.rec
}

// Cursor streams records forward in batches. Next returns io.EOF once the
// source is exhausted; a cursor is never rewound.
type Cursor interface {
	Next(ctx context.Context) ([]Record, error)
	Close() error
}

// DefaultBatchSize is used by cursors created without an explicit size.
const DefaultBatchSize = 1000

// SliceCursor serves records from memory.
type SliceCursor struct {
	records   []Record
	batchSize int
	pos       int
}

// NewSliceCursor returns a cursor over records.
func NewSliceCursor(records []Record, batchSize int) *SliceCursor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SliceCursor{records: records, batchSize: batchSize}
}

func (c *SliceCursor) Next(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.pos >= len(c.records) {
		return nil, io.EOF
	}
	end := min(c.pos+c.batchSize, len(c.records))
	batch := c.records[c.pos:end]
	c.pos = end
	return batch, nil
}

func (c *SliceCursor) Close() error { return nil }

// Drain reads every remaining batch. Intended for tests and small sources.
func Drain(ctx context.Context, c Cursor) ([]Record, error) {
	var all []Record
	for {
		batch, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
	}
}
