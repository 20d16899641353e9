package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// TaxonRepository reads the taxonomy snapshot.
type TaxonRepository struct {
	db DBTX
}

func NewTaxonRepository(db DBTX) *TaxonRepository {
	return &TaxonRepository{db: db}
}

func (r *TaxonRepository) LoadTaxa(ctx context.Context) ([]observation.Taxon, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, scientific_name, vernacular_name, taxon_rank, kingdom,
		        redlist_category, protected_by_law, protection_level, disturbance_radius
		   FROM taxon
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query taxa: %w", err)
	}

	taxa, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (observation.Taxon, error) {
		var t observation.Taxon
		var level int16
		err := row.Scan(&t.ID, &t.ScientificName, &t.VernacularName, &t.TaxonRank, &t.Kingdom,
			&t.RedlistCategory, &t.ProtectedByLaw, &level, &t.DisturbanceRadius)
		t.ProtectionLevel = int(level)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan taxa: %w", err)
	}
	return taxa, nil
}

// VocabularyRepository reads the controlled vocabularies.
type VocabularyRepository struct {
	db DBTX
}

func NewVocabularyRepository(db DBTX) *VocabularyRepository {
	return &VocabularyRepository{db: db}
}

type vocabularyRow struct {
	vocabulary observation.VocabularyID
	entry      observation.VocabularyEntry
}

func (r *VocabularyRepository) LoadVocabularies(ctx context.Context) ([]observation.Vocabulary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT vocabulary_id, entry_id, value, synonyms
		   FROM vocabulary
		  ORDER BY vocabulary_id, entry_id`)
	if err != nil {
		return nil, fmt.Errorf("query vocabularies: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocabularyRow, error) {
		var v vocabularyRow
		var id int32
		err := row.Scan(&id, &v.entry.ID, &v.entry.Value, &v.entry.Synonyms)
		v.vocabulary = observation.VocabularyID(id)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan vocabularies: %w", err)
	}
	return groupVocabularies(entries), nil
}

// groupVocabularies folds entry rows into one Vocabulary per id, ordered by id.
func groupVocabularies(rows []vocabularyRow) []observation.Vocabulary {
	byID := make(map[observation.VocabularyID]*observation.Vocabulary)
	for _, r := range rows {
		v, ok := byID[r.vocabulary]
		if !ok {
			v = &observation.Vocabulary{ID: r.vocabulary}
			byID[r.vocabulary] = v
		}
		v.Entries = append(v.Entries, r.entry)
	}

	out := make([]observation.Vocabulary, 0, len(byID))
	for _, v := range byID {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
