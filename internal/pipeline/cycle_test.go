package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/biopipe/internal/dwca"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/processing"
)

// fakeProcessor returns canned outcomes per provider identifier and can
// write fragments through a FragmentWriter like the real processor does.
type fakeProcessor struct {
	mu       sync.Mutex
	errs     map[string]error
	writer   processing.FragmentWriter
	obs      map[string][]*observation.Observation
	seen     []string
	onRun    func(identifier string)
	lastMode processing.RunMode
}

func (f *fakeProcessor) ProcessProvider(ctx context.Context, p *observation.DataProvider, mode processing.RunMode) (processing.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, p.Identifier)
	f.lastMode = mode
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun(p.Identifier)
	}

	res := processing.Result{Provider: p.Identifier, PublicCount: 3, InvalidCount: 1, Start: time.Now()}
	if err := f.errs[p.Identifier]; err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%w: %w", processing.ErrAborted, err)
	}
	if f.writer != nil && len(f.obs[p.Identifier]) > 0 {
		if err := f.writer.WriteObservations(ctx, p, "1", f.obs[p.Identifier]); err != nil {
			return res, err
		}
	}
	res.End = time.Now()
	return res, nil
}

type fakeExporter struct {
	beginErr    error
	finalizeErr error
	finalized   []*observation.DataProvider
	info        *dwca.ProcessInfo
	calls       int
	aborts      int
}

func (f *fakeExporter) Abort(context.Context) error {
	f.aborts++
	return nil
}

func (f *fakeExporter) Begin(context.Context) (string, error) {
	return "cycle-1", f.beginErr
}

func (f *fakeExporter) Finalize(_ context.Context, providers []*observation.DataProvider, info *dwca.ProcessInfo) ([]string, error) {
	f.calls++
	f.finalized = providers
	f.info = info
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	var out []string
	for _, p := range providers {
		out = append(out, p.Identifier+".dwca.zip")
	}
	return out, nil
}

func catalog() []*observation.DataProvider {
	return []*observation.DataProvider{
		{ID: 1, Identifier: "artportalen", Enabled: true},
		{ID: 2, Identifier: "nors", Enabled: true},
		{ID: 3, Identifier: "kul", Enabled: false},
	}
}

func TestRun_ProcessesEnabledProvidersAndFinalizes(t *testing.T) {
	proc := &fakeProcessor{}
	exp := &fakeExporter{}
	c := NewCycle(proc, catalog(), processing.Full, WithExporter(exp))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"artportalen", "nors"}, proc.seen)
	assert.Equal(t, processing.Full, proc.lastMode)
	assert.Equal(t, "cycle-1", sum.ID)
	assert.Equal(t, "full", sum.Mode)
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, []string{"artportalen.dwca.zip", "nors.dwca.zip"}, sum.Published)
	require.Len(t, sum.Providers, 2)

	require.NotNil(t, exp.info)
	assert.Equal(t, "cycle-1", exp.info.ID)
	require.Len(t, exp.info.Providers, 2)
	assert.Equal(t, 3, exp.info.Providers[0].PublicCount)
	assert.Equal(t, 1, exp.info.Providers[0].InvalidCount)

	assert.Same(t, sum, c.Last())
	assert.Zero(t, exp.aborts)
}

func TestRun_FailedProviderIsNotFinalized(t *testing.T) {
	proc := &fakeProcessor{errs: map[string]error{"nors": errors.New("get id range: connection refused")}}
	exp := &fakeExporter{}
	c := NewCycle(proc, catalog(), processing.Incremental, WithExporter(exp))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, exp.finalized, 1)
	assert.Equal(t, "artportalen", exp.finalized[0].Identifier)
	assert.Equal(t, StatusFailed, sum.Providers[1].Status)
	assert.Contains(t, sum.Providers[1].Error, "connection refused")
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, StatusFailed, exp.info.Providers[1].Status)
}

func TestRun_AllProvidersFailed(t *testing.T) {
	boom := errors.New("lookup tables unavailable")
	proc := &fakeProcessor{errs: map[string]error{"artportalen": boom, "nors": boom}}
	c := NewCycle(proc, catalog(), processing.Incremental, WithExporter(&fakeExporter{}))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, sum.Status)
}

func TestRun_CancelledSkipsFinalize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcessor{onRun: func(id string) {
		if id == "artportalen" {
			cancel()
		}
	}}
	exp := &fakeExporter{}
	c := NewCycle(proc, catalog(), processing.Incremental, WithExporter(exp))

	sum, err := c.Run(ctx)
	assert.ErrorIs(t, err, processing.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, sum.Status)
	assert.Zero(t, exp.calls, "nothing is published after cancellation")
	assert.Equal(t, 1, exp.aborts, "fragments are discarded")
	assert.Equal(t, []string{"artportalen"}, proc.seen)
	assert.Equal(t, StatusCancelled, c.Last().Status)
}

func TestRun_BeginFailure(t *testing.T) {
	exp := &fakeExporter{beginErr: errors.New("permission denied")}
	proc := &fakeProcessor{}
	c := NewCycle(proc, catalog(), processing.Incremental, WithExporter(exp))

	sum, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, sum.Status)
	assert.Empty(t, proc.seen)
	assert.NotEmpty(t, c.Last().Error)
}

func TestRun_FinalizeFailure(t *testing.T) {
	exp := &fakeExporter{finalizeErr: errors.New("disk full")}
	c := NewCycle(&fakeProcessor{}, catalog(), processing.Incremental, WithExporter(exp))

	sum, err := c.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, StatusFailed, sum.Status)
}

func TestRun_WithoutExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, "test")
	c := NewCycle(&fakeProcessor{}, catalog(), processing.Incremental, WithMetrics(m))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.ID)
	assert.Empty(t, sum.Published)
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func testObs(id string) *observation.Observation {
	start := time.Date(2023, 5, 14, 0, 0, 0, 0, time.UTC)
	lat, lon := 59.3293, 18.0686
	return &observation.Observation{
		ID:            "urn:lsid:test:occurrence:" + id,
		BasisOfRecord: observation.VocabularyValue{Value: "HumanObservation"},
		Taxon:         &observation.Taxon{ID: 100, ScientificName: "Parus major"},
		Event:         &observation.Event{StartDate: &start, EndDate: &start},
		Location:      &observation.Location{DecimalLatitude: &lat, DecimalLongitude: &lon},
		Occurrence:    &observation.Occurrence{OccurrenceID: id},
	}
}

func TestRun_PublishesThroughCoordinator(t *testing.T) {
	root := t.TempDir()
	coord := dwca.NewCoordinator(dwca.Config{
		ExportFolder:       filepath.Join(root, "export"),
		PublishFolder:      filepath.Join(root, "publish"),
		IncludeProcessInfo: true,
	})
	proc := &fakeProcessor{
		writer: coord,
		obs: map[string][]*observation.Observation{
			"artportalen": {testObs("a1"), testObs("a2")},
			"nors":        {testObs("n1")},
		},
		errs: map[string]error{},
	}
	providers := catalog()
	c := NewCycle(proc, providers, processing.Incremental, WithExporter(coord))

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		coord.PublishedPath("artportalen"),
		coord.PublishedPath("nors"),
		coord.PublishedPath(dwca.AllProvidersIdentifier),
	}, sum.Published)
	for _, p := range sum.Published {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
	assert.NotEmpty(t, providers[0].LatestUploadedFileHash)

	// Same data again: nothing changes, nothing is republished.
	sum, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Published)
}
