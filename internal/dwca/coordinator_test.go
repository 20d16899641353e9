package dwca

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

type memHashes struct {
	mu     sync.Mutex
	hashes map[int]string
}

func (m *memHashes) UpdateLatestUploadedFileHash(_ context.Context, id int, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes == nil {
		m.hashes = make(map[int]string)
	}
	m.hashes[id] = hash
	return nil
}

func testObs(id string) *observation.Observation {
	start := time.Date(2023, 5, 14, 0, 0, 0, 0, time.UTC)
	return &observation.Observation{
		ID:            "urn:lsid:test:occurrence:" + id,
		BasisOfRecord: observation.VocabularyValue{ID: 0, Value: "HumanObservation"},
		AccessRights:  observation.FreeUsage,
		Taxon:         &observation.Taxon{ID: 100, ScientificName: "Parus major"},
		Event:         &observation.Event{StartDate: &start, EndDate: &start},
		Location: &observation.Location{
			DecimalLatitude:  observation.Float(59.3293),
			DecimalLongitude: observation.Float(18.0686),
			Locality:         "Gamla\tstan\nStockholm",
		},
		Occurrence: &observation.Occurrence{OccurrenceID: id, RecordedBy: "Anna"},
	}
}

func batchOf(prefix string, n int) []*observation.Observation {
	out := make([]*observation.Observation, n)
	for i := range out {
		out[i] = testObs(fmt.Sprintf("%s-%d", prefix, i))
	}
	return out
}

type fixture struct {
	coord    *Coordinator
	hashes   *memHashes
	provider *observation.DataProvider
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		hashes:   &memHashes{},
		provider: &observation.DataProvider{ID: 1, Identifier: "artportalen", Name: "Artportalen"},
		now:      time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC),
	}
	f.coord = NewCoordinator(Config{
		ExportFolder:       filepath.Join(root, "export"),
		PublishFolder:      filepath.Join(root, "publish"),
		NoOfThreads:        2,
		IncludeProcessInfo: true,
	}, WithHashStore(f.hashes), WithClock(func() time.Time { return f.now }))
	return f
}

// cycle runs one export cycle writing the given batches.
func (f *fixture) cycle(t *testing.T, batches map[string][]*observation.Observation) []string {
	t.Helper()
	ctx := context.Background()
	cycleID, err := f.coord.Begin(ctx)
	require.NoError(t, err)

	for id, obs := range batches {
		require.NoError(t, f.coord.WriteObservations(ctx, f.provider, id, obs))
	}

	info := &ProcessInfo{ID: cycleID, Start: f.now, End: f.now.Add(time.Minute), Status: "success"}
	published, err := f.coord.Finalize(ctx, []*observation.DataProvider{f.provider}, info)
	require.NoError(t, err)
	return published
}

func readEntry(t *testing.T, path, name string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("%s has no entry %s", path, name)
	return ""
}

func entryNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestWriteRow_Sanitizes(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeRow(w, []string{"a\tb", "c\r\nd", "e"}))
	require.NoError(t, w.Flush())
	assert.Equal(t, "a b\tc d\te\n", buf.String())
}

func TestFragmentPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/x", "DwcaCreationTempFiles-nors", "occurrence-1001.csv"),
		FragmentPath("/x", "nors", OccurrencePart, "1001"))
	assert.Equal(t,
		filepath.Join("/x", "DwcaCreationTempFiles-nors", "multimedia.csv"),
		FragmentPath("/x", "nors", MultimediaPart, ""))
}

func TestOccurrenceRow_FollowsFieldOrder(t *testing.T) {
	row := occurrenceRow(testObs("a"))
	require.Len(t, row, len(observation.OccurrenceFields))
	assert.Equal(t, "urn:lsid:test:occurrence:a", row[0])

	idx := func(name string) int {
		for i, f := range observation.OccurrenceFields {
			if f.Name == name {
				return i
			}
		}
		t.Fatalf("no field %s", name)
		return -1
	}
	assert.Equal(t, "59.3293", row[idx("decimalLatitude")])
	assert.Equal(t, "2023-05-14T00:00:00Z", row[idx("eventDate")])
	assert.Equal(t, "urn:lsid:dyntaxa.se:Taxon:100", row[idx("taxonID")])
	assert.Equal(t, "", row[idx("county")])
}

func TestWriteObservations_ConcurrentBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coord.Begin(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for b := 0; b < 8; b++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprint(b*100 + 1)
			assert.NoError(t, f.coord.WriteObservations(ctx, f.provider, id, batchOf(id, 5)))
		}()
	}
	wg.Wait()

	parts, ok := f.coord.Parts(f.provider.ID)
	require.True(t, ok)
	assert.Len(t, parts.BatchIDs(), 8)
	assert.Equal(t, "1", parts.BatchIDs()[0])
	assert.Equal(t, "701", parts.BatchIDs()[7])

	for _, path := range parts.Fragments(OccurrencePart) {
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 5, strings.Count(string(b), "\n"), path)
	}
	for _, path := range parts.Fragments(MultimediaPart) {
		assert.NoFileExists(t, path)
	}
}

func TestWriteObservations_Cancelled(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.coord.WriteObservations(ctx, f.provider, "1", batchOf("x", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFinalize_PublishesProviderAndCombined(t *testing.T) {
	f := newFixture(t)
	obs := batchOf("a", 4)
	obs[0].Media = []observation.Multimedia{{Type: "StillImage", Identifier: "https://img/1.jpg"}}

	published := f.cycle(t, map[string][]*observation.Observation{"1": obs[:2], "3": obs[2:]})

	providerPath := f.coord.PublishedPath("artportalen")
	combinedPath := f.coord.PublishedPath(AllProvidersIdentifier)
	assert.ElementsMatch(t, []string{providerPath, combinedPath}, published)

	assert.ElementsMatch(t,
		[]string{"meta.xml", "eml.xml", "occurrence.csv", "multimedia.csv", "processinfo.xml"},
		entryNames(t, providerPath))

	occ := readEntry(t, providerPath, "occurrence.csv")
	lines := strings.Split(strings.TrimSuffix(occ, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "occurrenceID\tbasisOfRecord"))
	assert.Contains(t, lines[1], "Gamla stan Stockholm")
	assert.Equal(t, len(observation.OccurrenceFields), len(strings.Split(lines[1], "\t")))

	meta := readEntry(t, providerPath, "meta.xml")
	assert.Contains(t, meta, `rowType="http://rs.gbif.org/terms/1.0/Multimedia"`)
	assert.NotContains(t, meta, "ExtendedMeasurementOrFact")
	assert.Contains(t, readEntry(t, providerPath, "eml.xml"), "<pubDate>2024-03-10</pubDate>")

	hash, err := CalculateHash(providerPath)
	require.NoError(t, err)
	assert.Equal(t, hash, f.provider.LatestUploadedFileHash)
	assert.Equal(t, hash, f.hashes.hashes[1])

	assert.NoDirExists(t, filepath.Join(f.coord.cfg.ExportFolder, TempFolderName("artportalen")))
	temps, _ := filepath.Glob(filepath.Join(f.coord.cfg.PublishFolder, "*"+tempArchiveSuffix))
	assert.Empty(t, temps)
}

func TestFinalize_UnchangedIsNotRepublished(t *testing.T) {
	f := newFixture(t)
	batches := map[string][]*observation.Observation{"1": batchOf("a", 3)}

	require.Len(t, f.cycle(t, batches), 2)
	before, err := os.Stat(f.coord.PublishedPath("artportalen"))
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	assert.Empty(t, f.cycle(t, batches))

	after, err := os.Stat(f.coord.PublishedPath("artportalen"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.NoFileExists(t, f.coord.BackupPath("artportalen"))
}

func TestFinalize_ChangedDataKeepsBackup(t *testing.T) {
	f := newFixture(t)
	require.Len(t, f.cycle(t, map[string][]*observation.Observation{"1": batchOf("a", 3)}), 2)
	first := f.provider.LatestUploadedFileHash

	published := f.cycle(t, map[string][]*observation.Observation{"1": batchOf("a", 4)})
	assert.Contains(t, published, f.coord.PublishedPath("artportalen"))
	assert.NotEqual(t, first, f.provider.LatestUploadedFileHash)

	backup, err := CalculateHash(f.coord.BackupPath("artportalen"))
	require.NoError(t, err)
	assert.Equal(t, first, backup)
}

func TestFinalize_MissingPublishedArchiveIsRepublished(t *testing.T) {
	f := newFixture(t)
	batches := map[string][]*observation.Observation{"1": batchOf("a", 2)}
	f.cycle(t, batches)

	require.NoError(t, os.Remove(f.coord.PublishedPath("artportalen")))
	published := f.cycle(t, batches)
	assert.Contains(t, published, f.coord.PublishedPath("artportalen"))
	assert.FileExists(t, f.coord.PublishedPath("artportalen"))
}

func TestFinalize_InterruptedRunLeavesPublishedIntact(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, map[string][]*observation.Observation{"1": batchOf("a", 2)})
	published := f.coord.PublishedPath("artportalen")
	original, err := os.ReadFile(published)
	require.NoError(t, err)

	// A run that dies after writing fragments and a temp archive but before
	// the rename.
	ctx := context.Background()
	_, err = f.coord.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.WriteObservations(ctx, f.provider, "1", batchOf("b", 9)))
	parts, _ := f.coord.Parts(f.provider.ID)
	eml, _ := ProviderEml{}.Eml(ctx, f.provider)
	tmp, err := buildArchive(ctx, f.coord.cfg.PublishFolder, "artportalen", archiveSource{
		parts: []*FilePartsInfo{parts}, eml: eml, now: f.now,
	})
	require.NoError(t, err)

	current, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Equal(t, original, current)
	_, err = CalculateHash(published)
	assert.NoError(t, err)

	// The next cycle clears the leftovers before writing anything.
	_, err = f.coord.Begin(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, tmp)
	assert.NoDirExists(t, parts.Folder())
}

func TestAbort_RemovesFragmentsKeepsPublished(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, map[string][]*observation.Observation{"1": batchOf("a", 2)})
	published := f.coord.PublishedPath("artportalen")
	original, err := os.ReadFile(published)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = f.coord.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.WriteObservations(ctx, f.provider, "1", batchOf("b", 3)))
	parts, ok := f.coord.Parts(f.provider.ID)
	require.True(t, ok)
	require.DirExists(t, parts.Folder())

	require.NoError(t, f.coord.Abort(ctx))

	assert.NoDirExists(t, parts.Folder())
	_, ok = f.coord.Parts(f.provider.ID)
	assert.False(t, ok)
	current, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Equal(t, original, current)
}

func TestFinalize_NothingWritten(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.cycle(t, nil))
	assert.NoFileExists(t, f.coord.PublishedPath(AllProvidersIdentifier))
}

func TestCalculateHash_IgnoresPubDateAndProcessInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.coord.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.WriteObservations(ctx, f.provider, "1", batchOf("a", 3)))
	parts, _ := f.coord.Parts(f.provider.ID)
	eml, _ := ProviderEml{}.Eml(ctx, f.provider)

	a, err := buildArchive(ctx, f.coord.cfg.PublishFolder, "a", archiveSource{
		parts: []*FilePartsInfo{parts}, eml: eml, now: f.now,
	})
	require.NoError(t, err)
	b, err := buildArchive(ctx, f.coord.cfg.PublishFolder, "b", archiveSource{
		parts: []*FilePartsInfo{parts}, eml: eml, now: f.now.AddDate(0, 2, 0),
		processInfo: &ProcessInfo{ID: "x", Status: "success", Start: f.now},
	})
	require.NoError(t, err)

	ha, err := CalculateHash(a)
	require.NoError(t, err)
	hb, err := CalculateHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	_, err = CalculateHash(filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, ErrHashUnknown)
}

func TestReplaceWithBackup(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "x.dwca.zip")
	backup := filepath.Join(dir, "x.previous.dwca.zip")

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	require.NoError(t, ReplaceWithBackup(write("1.tmp", "one"), dst, backup))
	assert.NoFileExists(t, backup)

	require.NoError(t, ReplaceWithBackup(write("2.tmp", "two"), dst, backup))
	got, _ := os.ReadFile(dst)
	prev, _ := os.ReadFile(backup)
	assert.Equal(t, "two", string(got))
	assert.Equal(t, "one", string(prev))
	assert.NoFileExists(t, filepath.Join(dir, "2.tmp"))
}
