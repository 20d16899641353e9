package store

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

// VerbatimRepository reads and appends provider-native records.
type VerbatimRepository struct {
	db DBTX
}

func NewVerbatimRepository(db DBTX) *VerbatimRepository {
	return &VerbatimRepository{db: db}
}

// GetIDRange returns the smallest and largest verbatim id of a provider, or
// 0, 0 when it has no records.
func (r *VerbatimRepository) GetIDRange(ctx context.Context, providerID int) (min, max int64, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT coalesce(min(id), 0), coalesce(max(id), 0)
		   FROM verbatim_observation
		  WHERE data_provider_id = $1`,
		providerID,
	).Scan(&min, &max)
	if err != nil {
		return 0, 0, fmt.Errorf("verbatim id range: %w", err)
	}
	return min, max, nil
}

// GetBatch returns the records with start <= id <= end in id order.
func (r *VerbatimRepository) GetBatch(ctx context.Context, providerID int, start, end int64) ([]verbatim.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, fields
		   FROM verbatim_observation
		  WHERE data_provider_id = $1 AND id BETWEEN $2 AND $3
		  ORDER BY id`,
		providerID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("verbatim batch %d-%d: %w", start, end, err)
	}
	return scanRecords(rows, providerID)
}

func (r *VerbatimRepository) page(ctx context.Context, providerID int, after int64, limit int) ([]verbatim.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, fields
		   FROM verbatim_observation
		  WHERE data_provider_id = $1 AND id > $2
		  ORDER BY id
		  LIMIT $3`,
		providerID, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("verbatim page after %d: %w", after, err)
	}
	return scanRecords(rows, providerID)
}

func scanRecords(rows pgx.Rows, providerID int) ([]verbatim.Record, error) {
	defer rows.Close()

	var out []verbatim.Record
	for rows.Next() {
		rec := verbatim.Record{DataProviderID: providerID}
		if err := rows.Scan(&rec.ID, &rec.Fields); err != nil {
			return nil, fmt.Errorf("scan verbatim: %w", err)
		}
		if rec.Fields == nil {
			rec.Fields = map[string]string{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verbatim: %w", err)
	}
	return out, nil
}

// Cursor streams a provider's records forward in pages of batchSize.
func (r *VerbatimRepository) Cursor(providerID, batchSize int) *VerbatimCursor {
	return newVerbatimCursor(func(ctx context.Context, after int64, limit int) ([]verbatim.Record, error) {
		return r.page(ctx, providerID, after, limit)
	}, batchSize)
}

// AddMany appends records for providerID with COPY and returns the count.
// Record ids are assigned by the database.
func (r *VerbatimRepository) AddMany(ctx context.Context, providerID int, recs []verbatim.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"verbatim_observation"},
		[]string{"data_provider_id", "fields"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			return []any{providerID, recs[i].Fields}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy verbatim: %w", err)
	}
	return n, nil
}

// DeleteProvider removes every verbatim record of a provider.
func (r *VerbatimRepository) DeleteProvider(ctx context.Context, providerID int) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM verbatim_observation WHERE data_provider_id = $1`, providerID)
	if err != nil {
		return 0, fmt.Errorf("delete verbatim: %w", err)
	}
	return tag.RowsAffected(), nil
}

type pageFunc func(ctx context.Context, after int64, limit int) ([]verbatim.Record, error)

// VerbatimCursor is a keyset cursor: every page starts after the last id seen,
// so concurrent appends never shift it.
type VerbatimCursor struct {
	fetch pageFunc
	size  int
	after int64
	done  bool
}

func newVerbatimCursor(fetch pageFunc, size int) *VerbatimCursor {
	if size <= 0 {
		size = verbatim.DefaultBatchSize
	}
	return &VerbatimCursor{fetch: fetch, size: size}
}

func (c *VerbatimCursor) Next(ctx context.Context) ([]verbatim.Record, error) {
	if c.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.fetch(ctx, c.after, c.size)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		c.done = true
		return nil, io.EOF
	}
	c.after = page[len(page)-1].ID
	if len(page) < c.size {
		c.done = true
	}
	return page, nil
}

func (c *VerbatimCursor) Close() error {
	c.done = true
	return nil
}
