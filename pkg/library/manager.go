package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/deploy"
	"github.com/RhyVis/meta-manager/pkg/events"
	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/metrics"
	"github.com/RhyVis/meta-manager/pkg/storage"
	"github.com/RhyVis/meta-manager/pkg/types"
)

const (
	// ArchiveDirName holds archives produced by CreateFromFolder
	ArchiveDirName = "archive"

	anonymousLayout = "ANONYMOUS-20060102-150405"
)

// UpsertResult reports which branch AddOrUpdate took
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "inserted"
}

// Manager is the library facade. It owns the store and routes record
// mutations through the deployer and archive codec.
type Manager struct {
	dataDir string
	level   int

	store       storage.Store
	codec       archive.Codec
	deployer    *deploy.Deployer
	eventBroker *events.Broker
	stopLog     func()
}

// Config holds configuration for creating a Manager
type Config struct {
	DataDir string

	// CompressionLevel is used by Compress; CreateFromFolder always uses
	// archive.MaxLevel.
	CompressionLevel int

	Store   storage.Options
	Archive archive.Options
	Deploy  deploy.Options
}

// NewManager opens the store in cfg.DataDir and wires the facade
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", types.ErrConfig, err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir, cfg.Store)
	if err != nil {
		return nil, err
	}

	registry := archive.NewRegistry(cfg.Archive)
	return New(store, registry, cfg.DataDir, cfg.CompressionLevel, cfg.Deploy), nil
}

// New wires a facade over an already opened store
func New(store storage.Store, codec archive.Codec, dataDir string, level int, opts deploy.Options) *Manager {
	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Manager{
		dataDir:     dataDir,
		level:       level,
		store:       store,
		codec:       codec,
		deployer:    deploy.NewDeployer(codec, opts),
		eventBroker: eventBroker,
		stopLog:     events.LogEvents(eventBroker),
	}
}

// DataDir returns the directory holding the store and created archives
func (m *Manager) DataDir() string {
	return m.dataDir
}

// Store exposes the underlying store for diagnostics
func (m *Manager) Store() storage.Store {
	return m.store
}

// GetEventBroker returns the broker carrying catalogue events
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// WarmUp surfaces storage faults before the first real operation
func (m *Manager) WarmUp() error {
	err := m.store.WarmUp()
	metrics.RecordOperation("warm_up", err)
	return err
}

// Get returns a copy of the record with the given id
func (m *Manager) Get(id string) (*types.Record, error) {
	rec, err := m.store.Get(id)
	metrics.RecordOperation("get", err)
	return rec, err
}

// List returns every record ordered by title, then id
func (m *Manager) List() ([]*types.Record, error) {
	recs, err := m.store.List()
	metrics.RecordOperation("list", err)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		ti, tj := strings.ToLower(recs[i].Title), strings.ToLower(recs[j].Title)
		if ti != tj {
			return ti < tj
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// AddOrUpdate inserts rec, or updates the stored record with the same id.
// On update the size is recalculated when the archive path changed,
// DateUpdated advances and DateCreated of the stored record is kept.
func (m *Manager) AddOrUpdate(rec *types.Record) (UpsertResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "add")

	result, err := m.upsert(rec)
	metrics.RecordOperation("add", err)
	if err != nil {
		return result, err
	}

	if result == Updated {
		m.publish(events.EventEntryUpdated, rec.ID, "entry updated")
	} else {
		m.publish(events.EventEntryAdded, rec.ID, "entry added")
	}
	return result, nil
}

func (m *Manager) upsert(rec *types.Record) (UpsertResult, error) {
	if rec.ID == "" {
		rec.ApplyDefaults()
	}

	existing, err := m.store.Get(rec.ID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		rec.ApplyDefaults()
		if err := m.store.Put(rec); err != nil {
			return Inserted, err
		}
		return Inserted, nil
	case err != nil:
		return Updated, err
	}

	if rec.ArchivePath != existing.ArchivePath {
		if err := m.deployer.CalculateSize(rec); err != nil {
			logger := log.WithEntryID(rec.ID)
			logger.Warn().Err(err).Msg("Size calculation failed")
		}
	}
	rec.DateCreated = existing.DateCreated
	if rec.DateUpdated.Before(existing.DateUpdated) {
		rec.DateUpdated = existing.DateUpdated
	}
	rec.Touch()

	if err := m.store.Put(rec); err != nil {
		return Updated, err
	}
	return Updated, nil
}

// Delete removes a record; removing an absent id is not an error.
// Deployed files are left in place.
func (m *Manager) Delete(id string) error {
	err := m.store.Delete(id)
	metrics.RecordOperation("delete", err)
	if err != nil {
		return err
	}
	m.publish(events.EventEntryDeleted, id, "entry deleted")
	return nil
}

// AddFromArchive creates a record for an existing archive, calculates its
// size and inserts it.
func (m *Manager) AddFromArchive(title string, platform types.Platform, platformID, archivePath, password string) (*types.Record, error) {
	rec := types.NewRecord(title, platform, platformID, archivePath)
	rec.ArchivePassword = password
	if err := m.AddArchive(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AddArchive makes rec's archive path absolute, calculates its size and
// stores it in a single write.
func (m *Manager) AddArchive(rec *types.Record) error {
	abs, err := filepath.Abs(rec.ArchivePath)
	if err != nil {
		err = fmt.Errorf("%w: resolving %s: %v", types.ErrFilesystem, rec.ArchivePath, err)
		metrics.RecordOperation("add", err)
		return err
	}
	rec.ArchivePath = abs

	if err := m.deployer.CalculateSize(rec); err != nil {
		metrics.RecordOperation("add", err)
		return err
	}

	_, err = m.AddOrUpdate(rec)
	return err
}

// CreateFromFolder compresses sourceDir into
// <data>/archive/<platform>/<platformID or ANONYMOUS-timestamp>.7z and
// inserts a record pointing at the new archive.
func (m *Manager) CreateFromFolder(title string, platform types.Platform, platformID, sourceDir, password string) (*types.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OperationDuration, "create")

	rec, err := m.createFromFolder(title, platform, platformID, sourceDir, password)
	metrics.RecordOperation("create", err)
	if err != nil {
		return nil, err
	}

	metrics.ArchivesCreated.Inc()
	m.publish(events.EventEntryCreated, rec.ID, "archive created from "+sourceDir)
	return rec, nil
}

func (m *Manager) createFromFolder(title string, platform types.Platform, platformID, sourceDir, password string) (*types.Record, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", types.ErrInvalidOperation, sourceDir)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, sourceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrInvalidOperation, sourceDir)
	}

	archivePath, err := m.newArchivePath(platform, platformID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(archivePath); err == nil {
		return nil, fmt.Errorf("%w: archive %s already exists", types.ErrInvalidOperation, archivePath)
	}

	logger := log.WithComponent("library")
	logger.Info().
		Str("source", sourceDir).
		Str("archive", archivePath).
		Msg("Creating archive")

	opts := archive.CompressOptions{Password: password, Level: archive.MaxLevel}
	if err := m.codec.Compress(sourceDir, archivePath, opts); err != nil {
		return nil, err
	}

	rec := types.NewRecord(title, platform, platformID, archivePath)
	rec.ArchivePassword = password
	if err := m.deployer.CalculateSize(rec); err != nil {
		logger.Warn().Err(err).Str("archive", archivePath).Msg("Failed to calculate archive size")
	}
	if err := m.store.Put(rec); err != nil {
		if rerr := os.Remove(archivePath); rerr != nil {
			logger.Warn().Err(rerr).Str("archive", archivePath).Msg("Failed to remove unrecorded archive")
		}
		return nil, err
	}
	return rec, nil
}

func (m *Manager) newArchivePath(platform types.Platform, platformID string) (string, error) {
	name := platformID
	if name == "" {
		name = types.Now().Format(anonymousLayout)
	}
	for _, part := range []string{platform.String(), name} {
		if !isPathComponent(part) {
			return "", fmt.Errorf("%w: %q cannot be used as an archive path component", types.ErrInvalidOperation, part)
		}
	}
	return filepath.Join(m.dataDir, ArchiveDirName, platform.String(), name+".7z"), nil
}

// isPathComponent reports whether s names exactly one entry below its parent
func isPathComponent(s string) bool {
	return filepath.IsLocal(s) && !strings.ContainsAny(s, `/\`) && s != "."
}

// Compress packs srcDir into a .7z archive at the configured level
func (m *Manager) Compress(srcDir, destArchive, password string) error {
	err := m.codec.Compress(srcDir, destArchive, archive.CompressOptions{
		Password: password,
		Level:    m.level,
	})
	metrics.RecordOperation("compress", err)
	return err
}

// Deploy extracts the record's archive into target and persists the new
// deployment state
func (m *Manager) Deploy(id, target string) (*types.Record, error) {
	rec, err := m.deploy(id, target)
	metrics.RecordOperation("deploy", err)
	if err != nil {
		return nil, err
	}
	m.publish(events.EventEntryDeployed, id, "deployed to "+rec.DeployedPath)
	return rec, nil
}

func (m *Manager) deploy(id, target string) (*types.Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	format, _ := archive.DetectFormat(rec.ArchivePath)
	timer := metrics.NewTimer()
	if err := m.deployer.Deploy(rec, target); err != nil {
		return nil, err
	}
	timer.ObserveDurationVec(metrics.DeployDuration, string(format))

	if err := m.store.Put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeployOff removes the record's deployed files. When the record tracks
// no valid deployment it is saved in its normalized state and the
// ErrInvalidOperation is still returned.
func (m *Manager) DeployOff(id string) (*types.Record, error) {
	rec, err := m.deployOff(id)
	metrics.RecordOperation("deploy_off", err)
	if err != nil {
		return rec, err
	}
	m.publish(events.EventEntryUndeployed, id, "deployment removed")
	return rec, nil
}

func (m *Manager) deployOff(id string) (*types.Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	if err := m.deployer.Undeploy(rec); err != nil {
		if !errors.Is(err, types.ErrInvalidOperation) {
			return nil, err
		}
		if putErr := m.store.Put(rec); putErr != nil {
			return nil, putErr
		}
		m.publish(events.EventEntryNormalized, id, "deployment fields cleared")
		return rec, err
	}

	if err := m.store.Put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Export writes the JSON interchange file and returns its path
func (m *Manager) Export() (string, error) {
	path, err := m.store.Export()
	metrics.RecordOperation("export", err)
	if err != nil {
		return "", err
	}
	m.publish(events.EventLibraryExported, "", "library exported to "+path)
	return path, nil
}

// Import upserts every record of the JSON interchange file. It reports
// false when no export file exists.
func (m *Manager) Import() (bool, error) {
	ok, err := m.store.Import()
	metrics.RecordOperation("import", err)
	if err != nil || !ok {
		return ok, err
	}
	m.publish(events.EventLibraryImported, "", "library imported")
	return true, nil
}

// RefreshMetrics recomputes the catalogue gauges
func (m *Manager) RefreshMetrics() error {
	return metrics.NewCollector(m.store).Collect()
}

// Shutdown drains events and closes the store
func (m *Manager) Shutdown() error {
	m.eventBroker.Stop()
	m.stopLog()
	return m.store.Close()
}

func (m *Manager) publish(eventType events.EventType, entryID, message string) {
	m.eventBroker.Publish(events.NewEvent(eventType, entryID, message))
}
