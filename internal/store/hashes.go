package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// HashRepository persists the hash of each provider's last published archive.
type HashRepository struct {
	db DBTX
}

func NewHashRepository(db DBTX) *HashRepository {
	return &HashRepository{db: db}
}

func (r *HashRepository) UpdateLatestUploadedFileHash(ctx context.Context, providerID int, hash string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO data_provider_hash (data_provider_id, hash, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (data_provider_id) DO UPDATE SET hash = EXCLUDED.hash, updated_at = EXCLUDED.updated_at`,
		providerID, hash,
	)
	if err != nil {
		return fmt.Errorf("update hash of provider %d: %w", providerID, err)
	}
	return nil
}

// LoadHashes returns the stored hash per provider id.
func (r *HashRepository) LoadHashes(ctx context.Context) (map[int]string, error) {
	rows, err := r.db.Query(ctx, `SELECT data_provider_id, hash FROM data_provider_hash`)
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var id int
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// ApplyHashes copies stored hashes onto the catalog providers.
func ApplyHashes(providers []*observation.DataProvider, hashes map[int]string) {
	for _, p := range providers {
		if h, ok := hashes[p.ID]; ok {
			p.LatestUploadedFileHash = h
		}
	}
}
