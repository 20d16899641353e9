package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

var observationColumns = []string{
	"occurrence_id", "data_provider_id", "taxon_id", "start_date", "diffusion_status", "document", "modified",
}

// ObservationRepository stores canonical observations in the public and
// protected tables. The document column holds the full observation as JSON.
type ObservationRepository struct {
	db  DBTX
	now func() time.Time
}

func NewObservationRepository(db DBTX) *ObservationRepository {
	return &ObservationRepository{db: db, now: time.Now}
}

// observationRow converts obs into values ordered like observationColumns.
func observationRow(obs *observation.Observation, modified time.Time) ([]any, error) {
	doc, err := json.Marshal(obs)
	if err != nil {
		return nil, fmt.Errorf("encode observation %s: %w", obs.ID, err)
	}

	var taxonID *int
	if obs.Taxon != nil && obs.Taxon.ID > 0 {
		id := obs.Taxon.ID
		taxonID = &id
	}
	var start *time.Time
	if obs.Event != nil {
		start = obs.Event.StartDate
	}
	return []any{obs.ID, obs.DataProviderID, taxonID, start, int16(obs.DiffusionStatus), doc, modified}, nil
}

// AddMany writes obs with COPY through a staging table so that a repeated
// occurrence id replaces the stored row instead of failing the batch.
func (r *ObservationRepository) AddMany(ctx context.Context, obs []*observation.Observation, protected bool) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	table := observationTable(protected)
	modified := r.now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stage := table + "_stage"
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), pgx.Identifier{table}.Sanitize(),
	)); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, observationColumns,
		pgx.CopyFromSlice(len(obs), func(i int) ([]any, error) {
			return observationRow(obs[i], modified)
		}),
	); err != nil {
		return 0, fmt.Errorf("copy observations: %w", err)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s (occurrence_id, data_provider_id, taxon_id, start_date, diffusion_status, document, modified)
		 SELECT DISTINCT ON (occurrence_id) occurrence_id, data_provider_id, taxon_id, start_date, diffusion_status, document, modified
		   FROM %[2]s
		 ON CONFLICT (occurrence_id) DO UPDATE SET
		   data_provider_id = EXCLUDED.data_provider_id,
		   taxon_id         = EXCLUDED.taxon_id,
		   start_date       = EXCLUDED.start_date,
		   diffusion_status = EXCLUDED.diffusion_status,
		   document         = EXCLUDED.document,
		   modified         = EXCLUDED.modified`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{stage}.Sanitize(),
	))
	if err != nil {
		return 0, fmt.Errorf("merge observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteByOccurrenceIDs removes the rows with the given occurrence ids.
func (r *ObservationRepository) DeleteByOccurrenceIDs(ctx context.Context, ids []string, protected bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE occurrence_id = ANY($1)", pgx.Identifier{observationTable(protected)}.Sanitize()),
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteProviderData removes every row of a provider.
func (r *ObservationRepository) DeleteProviderData(ctx context.Context, providerID int, protected bool) (int64, error) {
	tag, err := r.db.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE data_provider_id = $1", pgx.Identifier{observationTable(protected)}.Sanitize()),
		providerID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete provider %d: %w", providerID, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored rows of a provider.
func (r *ObservationRepository) Count(ctx context.Context, providerID int, protected bool) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s WHERE data_provider_id = $1", pgx.Identifier{observationTable(protected)}.Sanitize()),
		providerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}
