package processing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

type fakeTaxa struct {
	LoadTaxaFunc func(ctx context.Context) ([]observation.Taxon, error)
	calls        atomic.Int32
}

func (f *fakeTaxa) LoadTaxa(ctx context.Context) ([]observation.Taxon, error) {
	f.calls.Add(1)
	if f.LoadTaxaFunc != nil {
		return f.LoadTaxaFunc(ctx)
	}
	return []observation.Taxon{
		{ID: 100, ScientificName: "Parus major", VernacularName: "talgoxe", TaxonRank: "species", ProtectionLevel: 1},
		{ID: 200, ScientificName: "Aquila chrysaetos", VernacularName: "kungsörn", TaxonRank: "species", ProtectionLevel: 4, ProtectedByLaw: true, RedlistCategory: "NT", DisturbanceRadius: observation.Int(1000)},
	}, nil
}

type fakeVocabs struct {
	LoadVocabulariesFunc func(ctx context.Context) ([]observation.Vocabulary, error)
}

func (f *fakeVocabs) LoadVocabularies(ctx context.Context) ([]observation.Vocabulary, error) {
	if f.LoadVocabulariesFunc != nil {
		return f.LoadVocabulariesFunc(ctx)
	}
	return []observation.Vocabulary{
		{ID: observation.VocabularySex, Entries: []observation.VocabularyEntry{
			{ID: 1, Value: "male", Synonyms: []string{"hane", "m"}},
			{ID: 2, Value: "female", Synonyms: []string{"hona", "f"}},
		}},
		{ID: observation.VocabularyBasisOfRecord, Entries: []observation.VocabularyEntry{
			{ID: 1, Value: "HumanObservation"},
		}},
	}, nil
}

func newLookups() *Lookups {
	return NewLookups(&fakeTaxa{}, &fakeVocabs{})
}

// fakeVerbatim serves records from memory and records fetch behaviour.
type fakeVerbatim struct {
	records map[int64]verbatim.Record
	minID   int64
	maxID   int64
	// generate creates records on the fly for ids in [minID, maxID] when set.
	generate func(id int64) verbatim.Record
	delay    time.Duration
	failFor  map[int64]bool
	onFetch  func(start, end int64)

	mu       sync.Mutex
	fetched  map[int64]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeVerbatim(recs ...verbatim.Record) *fakeVerbatim {
	f := &fakeVerbatim{records: make(map[int64]verbatim.Record), fetched: make(map[int64]int)}
	for _, r := range recs {
		f.records[r.ID] = r
		if f.minID == 0 || r.ID < f.minID {
			f.minID = r.ID
		}
		if r.ID > f.maxID {
			f.maxID = r.ID
		}
	}
	return f
}

func (f *fakeVerbatim) GetIDRange(ctx context.Context, providerID int) (int64, int64, error) {
	return f.minID, f.maxID, nil
}

func (f *fakeVerbatim) GetBatch(ctx context.Context, providerID int, start, end int64) ([]verbatim.Record, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.onFetch != nil {
		f.onFetch(start, end)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failFor[start] {
		return nil, fmt.Errorf("connection reset fetching %d-%d", start, end)
	}

	var out []verbatim.Record
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := start; id <= end; id++ {
		f.fetched[id]++
		if f.generate != nil {
			out = append(out, f.generate(id))
			continue
		}
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// memObservations behaves like a table with a unique key on observation id.
type memObservations struct {
	mu        sync.Mutex
	public    map[string]*observation.Observation
	protected map[string]*observation.Observation
	deletes   int
	clears    int
}

func newMemObservations() *memObservations {
	return &memObservations{
		public:    make(map[string]*observation.Observation),
		protected: make(map[string]*observation.Observation),
	}
}

func (m *memObservations) table(protected bool) map[string]*observation.Observation {
	if protected {
		return m.protected
	}
	return m.public
}

func (m *memObservations) AddMany(ctx context.Context, obs []*observation.Observation, protected bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(protected)
	for _, o := range obs {
		if _, exists := t[o.ID]; exists {
			return 0, fmt.Errorf("duplicate key %s", o.ID)
		}
	}
	for _, o := range obs {
		t[o.ID] = o
	}
	return len(obs), nil
}

func (m *memObservations) DeleteByOccurrenceIDs(ctx context.Context, ids []string, protected bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	t := m.table(protected)
	var n int64
	for _, id := range ids {
		if _, ok := t[id]; ok {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (m *memObservations) DeleteProviderData(ctx context.Context, providerID int, protected bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	t := m.table(protected)
	var n int64
	for id, o := range t {
		if o.DataProviderID == providerID {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (m *memObservations) count(protected bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table(protected))
}

type fakeFragments struct {
	mu      sync.Mutex
	batches map[string]int
}

func (f *fakeFragments) WriteObservations(ctx context.Context, provider *observation.DataProvider, batchID string, obs []*observation.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = make(map[string]int)
	}
	f.batches[batchID] += len(obs)
	return nil
}

type countingAreas struct {
	calls atomic.Int32
}

func (c *countingAreas) Enrich(obs *observation.Observation) {
	c.calls.Add(1)
	if obs.Location != nil {
		obs.Location.County = &observation.Area{FeatureID: "1", Name: "Stockholm"}
	}
}

// row builds a valid Darwin Core verbatim row.
func row(id int64, occurrenceID string) verbatim.Record {
	return verbatim.NewBuilder(1, id).
		Set("occurrenceID", occurrenceID).
		Set("taxonID", "urn:lsid:dyntaxa.se:Taxon:100").
		Set("scientificName", "Parus major").
		Set("decimalLatitude", "59.3293").
		Set("decimalLongitude", "18.0686").
		Set("coordinateUncertaintyInMeters", "10").
		Set("eventDate", "2023-05-14").
		Set("sex", "hane").
		Set("basisOfRecord", "HumanObservation").
		Build()
}
