package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/RhyVis/meta-manager/pkg/events"
	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/metrics"
	"github.com/RhyVis/meta-manager/pkg/types"
)

// legacyDateLayout is how legacy release timestamps are stored on records
const legacyDateLayout = "2006-01-02"

// legacyGame is one entry of the game-library document written by releases
// before the content-type catalogue existed
type legacyGame struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	OriginalTitle *string        `json:"original_title"`
	Platform      types.Platform `json:"platform"`
	PlatformID    *string        `json:"platform_id"`

	Description *string    `json:"description"`
	Version     *string    `json:"version"`
	Developer   *string    `json:"developer"`
	Publisher   *string    `json:"publisher"`
	ReleaseDate *time.Time `json:"release_date"`

	ArchivePath         *string `json:"archive_path"`
	ArchivePathPassword *string `json:"archive_path_password"`
	DeployedPath        *string `json:"deployed_path"`
	SizeBytes           *uint64 `json:"size_bytes"`

	Tags []types.Tag `json:"tags"`

	DateCreated time.Time `json:"date_created"`
	DateUpdated time.Time `json:"date_updated"`
}

type legacyLibrary struct {
	Games []legacyGame `json:"games"`
}

// DecodeLegacy reads a legacy game-library document. Both the
// {"games": [...]} wrapper and a bare array are accepted.
func DecodeLegacy(r io.Reader) ([]*types.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading legacy library: %v", types.ErrFilesystem, err)
	}

	var games []legacyGame
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &games)
	} else {
		var doc legacyLibrary
		err = json.Unmarshal(trimmed, &doc)
		games = doc.Games
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding legacy library: %v", types.ErrCodec, err)
	}

	recs := make([]*types.Record, 0, len(games))
	for i := range games {
		recs = append(recs, games[i].record())
	}
	return recs, nil
}

func (g *legacyGame) record() *types.Record {
	rec := &types.Record{
		ID:              g.ID,
		Title:           g.Title,
		OriginalTitle:   deref(g.OriginalTitle),
		ContentType:     types.ContentTypeGame,
		Platform:        g.Platform,
		PlatformID:      deref(g.PlatformID),
		Description:     deref(g.Description),
		Version:         deref(g.Version),
		Developer:       deref(g.Developer),
		Publisher:       deref(g.Publisher),
		ArchivePath:     deref(g.ArchivePath),
		ArchivePassword: deref(g.ArchivePathPassword),
		SizeBytes:       g.SizeBytes,
		Tags:            g.Tags,
		DateCreated:     g.DateCreated,
		DateUpdated:     g.DateUpdated,
	}
	if g.ReleaseDate != nil {
		rec.ReleaseDate = g.ReleaseDate.UTC().Format(legacyDateLayout)
	}

	// Legacy entries only tracked the path; the kind is inferred from disk
	// and deployments that vanished are dropped.
	if path := deref(g.DeployedPath); path != "" {
		if info, err := os.Stat(path); err == nil {
			rec.DeployedPath = path
			rec.DeployedType = types.DeployTypeDirectory
			if !info.IsDir() {
				rec.DeployedType = types.DeployTypeCopyFile
			}
		}
	}

	rec.ApplyDefaults()
	return rec
}

// ImportLegacy decodes a legacy document and upserts every entry in one
// transaction. It returns the number of imported records.
func (m *Manager) ImportLegacy(r io.Reader) (int, error) {
	recs, err := DecodeLegacy(r)
	if err == nil {
		err = m.store.PutAll(recs)
	}
	metrics.RecordOperation("import_legacy", err)
	if err != nil {
		return 0, err
	}

	logger := log.WithComponent("library")
	logger.Info().Int("entries", len(recs)).Msg("Imported legacy library")

	event := events.NewEvent(events.EventLibraryImported, "", "legacy library imported")
	event.Metadata["entries"] = strconv.Itoa(len(recs))
	m.eventBroker.Publish(event)
	return len(recs), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
