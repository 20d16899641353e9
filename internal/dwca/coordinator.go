package dwca

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/biopipe/internal/logging"
	"github.com/JonMunkholm/biopipe/internal/metrics"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/tracing"
)

var tracer = otel.Tracer("biopipe/dwca")

const (
	// AllProvidersIdentifier names the combined archive.
	AllProvidersIdentifier = "all-providers"

	tempArchiveSuffix = ".dwca.zip.tmp"

	// ctx is checked this often while writing fragment rows.
	rowCheckInterval = 1000
)

// HashStore persists the hash of the last published archive per provider.
type HashStore interface {
	UpdateLatestUploadedFileHash(ctx context.Context, providerID int, hash string) error
}

// Config locates the fragment and publish folders.
type Config struct {
	// ExportFolder holds the per-provider fragment folders.
	ExportFolder string
	// PublishFolder holds the published archives and their backups.
	PublishFolder string
	// NoOfThreads bounds concurrent archive builds.
	NoOfThreads int
	// IncludeProcessInfo adds processinfo.xml to every archive.
	IncludeProcessInfo bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithHashStore(s HashStore) Option { return func(c *Coordinator) { c.hashes = s } }
func WithEmlSource(s EmlSource) Option { return func(c *Coordinator) { c.eml = s } }
func WithMetrics(m *metrics.Collector) Option { return func(c *Coordinator) { c.metrics = m } }
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// Coordinator collects archive fragments while providers are processed and
// turns them into published archives at the end of the cycle.
//
// WriteObservations may be called concurrently for any provider and batch.
// Begin and Finalize bracket one cycle and must not overlap.
type Coordinator struct {
	cfg     Config
	hashes  HashStore
	eml     EmlSource
	metrics *metrics.Collector
	now     func() time.Time

	mu      sync.Mutex
	cycleID string
	parts   map[int]*FilePartsInfo
}

// NewCoordinator returns a coordinator writing under cfg's folders.
func NewCoordinator(cfg Config, opts ...Option) *Coordinator {
	if cfg.NoOfThreads <= 0 {
		cfg.NoOfThreads = 2
	}
	c := &Coordinator{
		cfg:   cfg,
		eml:   ProviderEml{},
		now:   time.Now,
		parts: make(map[int]*FilePartsInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublishedPath is where the archive of identifier is published.
func (c *Coordinator) PublishedPath(identifier string) string {
	return filepath.Join(c.cfg.PublishFolder, identifier+".dwca.zip")
}

// BackupPath is where the previously published archive of identifier is kept.
func (c *Coordinator) BackupPath(identifier string) string {
	return filepath.Join(c.cfg.PublishFolder, identifier+".previous.dwca.zip")
}

// Begin starts a cycle. Fragments and temp archives left by an interrupted
// run are removed so they cannot leak into this cycle's archives.
func (c *Coordinator) Begin(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, dir := range []string{c.cfg.ExportFolder, c.cfg.PublishFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}

	n, err := c.removeLeftovers()
	if err != nil {
		return "", err
	}
	if n > 0 {
		logging.FromContext(ctx).Warn("removed leftovers of an interrupted export", "count", n)
	}

	c.cycleID = uuid.NewString()
	c.parts = make(map[int]*FilePartsInfo)
	return c.cycleID, nil
}

// Abort ends a cycle without publishing. Every fragment folder and temp
// archive is removed; published archives are left untouched.
func (c *Coordinator) Abort(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.removeLeftovers()
	c.parts = make(map[int]*FilePartsInfo)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("export aborted", "removed", n)
	return nil
}

// removeLeftovers deletes fragment folders and temp archives. Callers hold c.mu.
func (c *Coordinator) removeLeftovers() (int, error) {
	stale, _ := filepath.Glob(filepath.Join(c.cfg.ExportFolder, TempFolderName("*")))
	temps, _ := filepath.Glob(filepath.Join(c.cfg.PublishFolder, "*"+tempArchiveSuffix))
	for _, p := range append(stale, temps...) {
		if err := os.RemoveAll(p); err != nil {
			return 0, fmt.Errorf("remove stale %s: %w", p, err)
		}
	}
	return len(stale) + len(temps), nil
}

// CycleID returns the id handed out by the last Begin.
func (c *Coordinator) CycleID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleID
}

// Parts returns a copy of the fragments tracked for provider.
func (c *Coordinator) Parts(providerID int) (*FilePartsInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.parts[providerID]
	if !ok {
		return nil, false
	}
	return p.snapshot(), true
}

// paths registers batchID for provider and returns its fragment paths.
func (c *Coordinator) paths(provider *observation.DataProvider, batchID string) (map[PartKind]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.parts[provider.ID]
	if !ok {
		info = newFilePartsInfo(provider, c.cfg.ExportFolder)
		if err := os.MkdirAll(info.Folder(), 0o755); err != nil {
			return nil, fmt.Errorf("create fragment folder: %w", err)
		}
		c.parts[provider.ID] = info
	}
	return info.pathsFor(batchID), nil
}

// WriteObservations appends the public observations of one batch to the
// provider's fragment files. Fragments have no header row.
func (c *Coordinator) WriteObservations(ctx context.Context, provider *observation.DataProvider, batchID string, obs []*observation.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}

	paths, err := c.paths(provider, batchID)
	if err != nil {
		return err
	}

	for _, kind := range AllParts {
		n, err := writeFragment(ctx, paths[kind], kind, obs)
		if err != nil {
			return fmt.Errorf("write %s fragment %q: %w", kind, batchID, err)
		}
		c.metrics.RecordFragmentRows(kind.Name(), n)
	}
	return nil
}

func writeFragment(ctx context.Context, path string, kind PartKind, obs []*observation.Observation) (n int, err error) {
	var rows [][]string
	for _, o := range obs {
		rows = append(rows, rowsFor(kind, o)...)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	for i, row := range rows {
		if i%rowCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if err := writeRow(w, row); err != nil {
			return n, err
		}
		n++
	}
	return n, w.Flush()
}

type buildResult struct {
	provider *observation.DataProvider
	tempPath string
	hash     string
	changed  bool
	err      error
}

// Finalize builds an archive per provider that wrote fragments this cycle
// plus the combined archive, publishes the ones whose content changed and
// returns their paths. A provider whose build or publish fails is logged and
// left out; the others still publish. The combined archive publishes only
// when at least one provider archive did. Fragments and unpublished temp
// archives are removed whatever the outcome.
func (c *Coordinator) Finalize(ctx context.Context, providers []*observation.DataProvider, info *ProcessInfo) (published []string, err error) {
	ctx, span := tracer.Start(ctx, "finalize-archives")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.FromContext(ctx)

	var sources []*FilePartsInfo
	c.mu.Lock()
	for _, p := range providers {
		if parts, ok := c.parts[p.ID]; ok {
			snap := parts.snapshot()
			snap.Provider = p
			sources = append(sources, snap)
		}
	}
	c.mu.Unlock()

	results := make([]*buildResult, len(sources))
	var combined *buildResult
	defer func() { c.cleanup(ctx, results, combined) }()

	if len(sources) == 0 {
		log.Info("no archive fragments this cycle")
		return nil, nil
	}

	now := c.now()
	var g errgroup.Group
	g.SetLimit(c.cfg.NoOfThreads)

	for i, src := range sources {
		results[i] = &buildResult{provider: src.Provider}
		res := results[i]
		g.Go(func() error {
			pctx := logging.WithProvider(ctx, src.Provider.Identifier)
			eml, err := c.eml.Eml(pctx, src.Provider)
			if err != nil {
				res.err = fmt.Errorf("eml: %w", err)
				return nil
			}
			c.build(pctx, res, src.Provider.Identifier, archiveSource{
				parts:       []*FilePartsInfo{src},
				eml:         eml,
				processInfo: c.processInfo(info, src.Provider.Identifier),
				now:         now,
			})
			if res.err == nil {
				res.changed = !c.unchanged(src.Provider, res.hash)
			}
			return ctx.Err()
		})
	}

	combined = &buildResult{provider: &observation.DataProvider{Identifier: AllProvidersIdentifier}}
	g.Go(func() error {
		c.build(ctx, combined, AllProvidersIdentifier, archiveSource{
			parts:       sources,
			eml:         allProvidersEml(AllProvidersIdentifier),
			processInfo: c.processInfo(info, ""),
			now:         now,
		})
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		id := res.provider.Identifier
		plog := log.With("provider", id)
		switch {
		case res.err != nil:
			plog.Error("archive build failed", "error", res.err)
		case !res.changed:
			plog.Info("archive unchanged, not published", "hash", res.hash)
			c.metrics.RecordArchive(id, metrics.ArchiveUnchanged, 0)
		default:
			if err := c.publish(ctx, res); err != nil {
				plog.Error("archive publish failed", "error", err)
				c.metrics.RecordArchive(id, metrics.ArchiveFailed, 0)
				continue
			}
			plog.Info("archive published", "path", c.PublishedPath(id), "hash", res.hash)
			published = append(published, c.PublishedPath(id))
		}
	}

	switch {
	case combined.err != nil:
		log.Error("combined archive build failed", "error", combined.err)
	case len(published) == 0:
		log.Info("no provider archive changed, combined archive not published")
		c.metrics.RecordArchive(AllProvidersIdentifier, metrics.ArchiveUnchanged, 0)
	default:
		if err := c.publish(ctx, combined); err != nil {
			log.Error("combined archive publish failed", "error", err)
			c.metrics.RecordArchive(AllProvidersIdentifier, metrics.ArchiveFailed, 0)
		} else {
			published = append(published, c.PublishedPath(AllProvidersIdentifier))
		}
	}
	return published, nil
}

func (c *Coordinator) build(ctx context.Context, res *buildResult, identifier string, src archiveSource) {
	began := time.Now()
	path, err := buildArchive(ctx, c.cfg.PublishFolder, identifier, src)
	if err != nil {
		res.err = err
		c.metrics.RecordArchive(identifier, metrics.ArchiveFailed, time.Since(began))
		return
	}
	res.tempPath = path

	hash, err := CalculateHash(path)
	if err != nil {
		res.err = err
		return
	}
	res.hash = hash
	logging.FromContext(ctx).Debug("archive built", "path", path, "hash", hash, "took", time.Since(began))
}

// unchanged reports whether hash matches both the stored hash and the
// archive currently published. A missing or unreadable published archive
// counts as changed.
func (c *Coordinator) unchanged(p *observation.DataProvider, hash string) bool {
	if p.LatestUploadedFileHash == "" || p.LatestUploadedFileHash != hash {
		return false
	}
	current, err := CalculateHash(c.PublishedPath(p.Identifier))
	return err == nil && current == hash
}

func (c *Coordinator) publish(ctx context.Context, res *buildResult) error {
	id := res.provider.Identifier
	if err := ReplaceWithBackup(res.tempPath, c.PublishedPath(id), c.BackupPath(id)); err != nil {
		return err
	}
	res.tempPath = ""
	c.metrics.RecordArchive(id, metrics.ArchivePublished, 0)

	if id == AllProvidersIdentifier {
		return nil
	}
	res.provider.LatestUploadedFileHash = res.hash
	if c.hashes != nil {
		if err := c.hashes.UpdateLatestUploadedFileHash(ctx, res.provider.ID, res.hash); err != nil {
			// The archive is live; the next cycle rebuilds and republishes it.
			logging.FromContext(ctx).Warn("store archive hash", "provider", id, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) processInfo(info *ProcessInfo, identifier string) *ProcessInfo {
	if info == nil || !c.cfg.IncludeProcessInfo {
		return nil
	}
	if identifier == "" {
		return info
	}
	return info.forProvider(identifier)
}

// cleanup removes the cycle's fragments and any temp archive that was not
// published, then forgets the tracked parts.
func (c *Coordinator) cleanup(ctx context.Context, results []*buildResult, combined *buildResult) {
	log := logging.FromContext(ctx)
	for _, res := range append(results, combined) {
		if res == nil || res.tempPath == "" {
			continue
		}
		if err := os.Remove(res.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove temp archive", "path", res.tempPath, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range c.parts {
		if err := os.RemoveAll(info.Folder()); err != nil {
			log.Warn("remove fragment folder", "path", info.Folder(), "error", err)
		}
	}
	c.parts = make(map[int]*FilePartsInfo)
}
