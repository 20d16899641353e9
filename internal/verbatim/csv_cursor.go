package verbatim

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVCursor reads a delimited provider file whose header row names Darwin
// Core terms. Record ids are 1-based data row numbers.
type CSVCursor struct {
	providerID int
	batchSize  int
	reader     *csv.Reader
	counter    *countingReader
	closer     io.Closer
	header     []string
	row        int64
	done       bool
}

// CSVOptions configures a CSVCursor.
type CSVOptions struct {
	ProviderID int
	BatchSize  int
	// Delimiter defaults to tab.
	Delimiter rune
	// Size is the input size in bytes, used for Progress. Zero if unknown.
	Size int64
}

// NewCSVCursor reads the header row from r and returns a cursor over the rest.
// If r implements io.Closer it is closed by Close.
func NewCSVCursor(r io.Reader, opts CSVOptions) (*CSVCursor, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	input, counter := wrapInput(r, opts.Size)
	cr := csv.NewReader(input)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}

	c := &CSVCursor{
		providerID: opts.ProviderID,
		batchSize:  opts.BatchSize,
		reader:     cr,
		counter:    counter,
		header:     cols,
	}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	return c, nil
}

// OpenCSVFile opens path and returns a cursor over it.
func OpenCSVFile(path string, opts CSVOptions) (*CSVCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verbatim file: %w", err)
	}
	if info, err := f.Stat(); err == nil {
		opts.Size = info.Size()
	}
	c, err := NewCSVCursor(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Header returns the trimmed column names.
func (c *CSVCursor) Header() []string {
	return c.header
}

func (c *CSVCursor) Next(ctx context.Context) ([]Record, error) {
	if c.done {
		return nil, io.EOF
	}
	batch := make([]Record, 0, c.batchSize)
	for len(batch) < c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := c.reader.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", c.row+1, err)
		}
		c.row++
		batch = append(batch, c.toRecord(fields))
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (c *CSVCursor) toRecord(fields []string) Record {
	b := NewBuilder(c.providerID, c.row)
	for i, name := range c.header {
		if name == "" || i >= len(fields) {
			continue
		}
		b.Set(name, fields[i])
	}
	return b.Build()
}

// Progress returns how far into the input the cursor has read, 0..100.
func (c *CSVCursor) Progress() int {
	return c.counter.percent()
}

// Rows returns the number of data rows read so far.
func (c *CSVCursor) Rows() int64 {
	return c.row
}

func (c *CSVCursor) Close() error {
	c.done = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
