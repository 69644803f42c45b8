package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RhyVis/meta-manager/pkg/deploy"
	"github.com/RhyVis/meta-manager/pkg/library"
	"github.com/RhyVis/meta-manager/pkg/types"
)

// Manifest is a YAML document describing entries to add or update
type Manifest struct {
	Entries []ManifestEntry `yaml:"entries"`
}

// ManifestEntry describes one catalogue entry. Entries with an id that is
// already stored are updated in place; deployment state is never touched.
type ManifestEntry struct {
	ID            string      `yaml:"id,omitempty"`
	Title         string      `yaml:"title"`
	OriginalTitle string      `yaml:"original_title,omitempty"`
	ContentType   string      `yaml:"content_type,omitempty"`
	Platform      string      `yaml:"platform,omitempty"`
	PlatformID    string      `yaml:"platform_id,omitempty"`
	Description   string      `yaml:"description,omitempty"`
	Version       string      `yaml:"version,omitempty"`
	Developer     string      `yaml:"developer,omitempty"`
	Publisher     string      `yaml:"publisher,omitempty"`
	ReleaseDate   string      `yaml:"release_date,omitempty"`
	Archive       string      `yaml:"archive,omitempty"`
	Password      string      `yaml:"password,omitempty"`
	Tags          []types.Tag `yaml:"tags,omitempty"`
}

func (a *app) newApplyCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Add or update entries from a YAML manifest",
		Long: `Add or update entries from a YAML manifest. Relative archive paths are
resolved against the manifest's directory.

Example manifest:
  entries:
    - title: Portal 2
      content_type: Game
      platform: Steam
      platform_id: "620"
      archive: archives/portal2.7z
      tags:
        - name: puzzle
          category: genre

Examples:
  metamgr apply -f library.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := readManifest(filename)
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}

			base := filepath.Dir(filename)
			for i := range manifest.Entries {
				entry := &manifest.Entries[i]
				result, rec, err := applyEntry(mgr, entry, base)
				if err != nil {
					return fmt.Errorf("entry %d (%s): %w", i+1, entry.Title, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Entry %s: %s (ID: %s)\n", okMark, result, rec.Title, rec.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filename, "file", "f", "", "YAML file to apply (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readManifest(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %v", err)
	}
	for i, entry := range manifest.Entries {
		if entry.Title == "" {
			return nil, fmt.Errorf("entry %d: title is required", i+1)
		}
	}
	return &manifest, nil
}

func applyEntry(mgr *library.Manager, entry *ManifestEntry, base string) (library.UpsertResult, *types.Record, error) {
	archivePath := entry.Archive
	if archivePath != "" && !filepath.IsAbs(archivePath) {
		archivePath = filepath.Join(base, archivePath)
	}
	if archivePath != "" {
		abs, err := filepath.Abs(archivePath)
		if err != nil {
			return library.Inserted, nil, err
		}
		archivePath = abs
	}

	var rec *types.Record
	if entry.ID != "" {
		existing, err := mgr.Get(entry.ID)
		switch {
		case err == nil:
			rec = existing
		case !errors.Is(err, types.ErrNotFound):
			return library.Inserted, nil, err
		}
	}
	if rec == nil {
		rec = types.NewRecord(entry.Title, types.Platform{}, "", "")
		if entry.ID != "" {
			rec.ID = entry.ID
		}
	}

	if entry.ContentType != "" {
		ct, err := parseContentType(entry.ContentType)
		if err != nil {
			return library.Inserted, nil, err
		}
		rec.ContentType = ct
	}
	rec.Title = entry.Title
	rec.OriginalTitle = entry.OriginalTitle
	rec.Platform = types.ParsePlatform(entry.Platform)
	rec.PlatformID = entry.PlatformID
	rec.Description = entry.Description
	rec.Developer = entry.Developer
	rec.Publisher = entry.Publisher
	rec.ReleaseDate = entry.ReleaseDate
	rec.ArchivePassword = entry.Password
	if entry.Version != "" {
		rec.Version = entry.Version
	}
	if entry.Tags != nil {
		rec.Tags = entry.Tags
	}

	// New entries get their size up front; updates recalculate it only
	// when the archive path changes.
	inserting := rec.ArchivePath == "" && rec.SizeBytes == nil
	rec.ArchivePath = archivePath
	if inserting && archivePath != "" {
		if size, err := deploy.PathSize(archivePath); err == nil {
			rec.SetSize(size)
		}
	}

	result, err := mgr.AddOrUpdate(rec)
	return result, rec, err
}
