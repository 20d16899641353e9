package processing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// TaxonSource loads the taxonomy snapshot.
type TaxonSource interface {
	LoadTaxa(ctx context.Context) ([]observation.Taxon, error)
}

// VocabularySource loads every controlled vocabulary.
type VocabularySource interface {
	LoadVocabularies(ctx context.Context) ([]observation.Vocabulary, error)
}

// Lookups holds the taxon and vocabulary snapshots used for mapping.
//
// Load fills the tables once; after that they are only read, so mappers on
// many goroutines use them without locking.
type Lookups struct {
	taxa   TaxonSource
	vocabs VocabularySource

	once   sync.Mutex
	loaded bool

	taxonByID   map[int]*observation.Taxon
	taxonByName map[string]*observation.Taxon
	vocabulary  map[observation.VocabularyID]map[string]observation.VocabularyValue
	vocabByID   map[observation.VocabularyID]map[int]string
}

// NewLookups returns unloaded lookups.
func NewLookups(taxa TaxonSource, vocabs VocabularySource) *Lookups {
	return &Lookups{taxa: taxa, vocabs: vocabs}
}

// Load reads both snapshots. Calls after a successful load return nil
// immediately; a failed load may be retried.
func (l *Lookups) Load(ctx context.Context) error {
	l.once.Lock()
	defer l.once.Unlock()
	if l.loaded {
		return nil
	}

	taxa, err := l.taxa.LoadTaxa(ctx)
	if err != nil {
		return fmt.Errorf("%w: load taxa: %w", ErrLookupUnavailable, err)
	}
	vocabs, err := l.vocabs.LoadVocabularies(ctx)
	if err != nil {
		return fmt.Errorf("%w: load vocabularies: %w", ErrLookupUnavailable, err)
	}

	l.taxonByID = make(map[int]*observation.Taxon, len(taxa))
	l.taxonByName = make(map[string]*observation.Taxon, len(taxa))
	for i := range taxa {
		t := &taxa[i]
		l.taxonByID[t.ID] = t
		if t.ScientificName != "" {
			l.taxonByName[normalize(t.ScientificName)] = t
		}
	}

	l.vocabulary = make(map[observation.VocabularyID]map[string]observation.VocabularyValue, len(vocabs))
	l.vocabByID = make(map[observation.VocabularyID]map[int]string, len(vocabs))
	for _, v := range vocabs {
		byText := make(map[string]observation.VocabularyValue, len(v.Entries))
		byID := make(map[int]string, len(v.Entries))
		for _, e := range v.Entries {
			val := observation.VocabularyValue{ID: e.ID, Value: e.Value}
			byText[normalize(e.Value)] = val
			for _, s := range e.Synonyms {
				byText[normalize(s)] = val
			}
			byID[e.ID] = e.Value
		}
		l.vocabulary[v.ID] = byText
		l.vocabByID[v.ID] = byID
	}

	l.loaded = true
	return nil
}

// Loaded reports whether Load has succeeded.
func (l *Lookups) Loaded() bool {
	l.once.Lock()
	defer l.once.Unlock()
	return l.loaded
}

// Taxon returns the taxon with id.
func (l *Lookups) Taxon(id int) (*observation.Taxon, bool) {
	t, ok := l.taxonByID[id]
	return t, ok
}

// TaxonByName resolves a scientific name, ignoring case and surrounding space.
func (l *Lookups) TaxonByName(name string) (*observation.Taxon, bool) {
	t, ok := l.taxonByName[normalize(name)]
	return t, ok
}

// TaxonCount returns the number of taxa in the snapshot.
func (l *Lookups) TaxonCount() int {
	return len(l.taxonByID)
}

// Resolve maps verbatim text to a vocabulary value. Blank input yields the
// zero value; text without a match yields a custom value.
func (l *Lookups) Resolve(vocab observation.VocabularyID, verbatim string) observation.VocabularyValue {
	key := normalize(verbatim)
	if key == "" {
		return observation.VocabularyValue{}
	}
	if v, ok := l.vocabulary[vocab][key]; ok {
		return v
	}
	return observation.VocabularyValue{ID: observation.CustomValueID, Value: strings.TrimSpace(verbatim)}
}

// VocabularyValue returns the display value of a vocabulary id.
func (l *Lookups) VocabularyValue(vocab observation.VocabularyID, id int) (string, bool) {
	v, ok := l.vocabByID[vocab][id]
	return v, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
