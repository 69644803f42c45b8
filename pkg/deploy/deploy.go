package deploy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/types"
)

// Options controls deployment policy
type Options struct {
	// AllowRedeploy lets Deploy run on a record that already tracks a
	// deployment. The previous deployment is not torn down.
	AllowRedeploy bool
}

// Deployer moves records between the NotDeployed and Deployed states
type Deployer struct {
	codec archive.Codec
	opts  Options
}

// NewDeployer creates a new deployer
func NewDeployer(codec archive.Codec, opts Options) *Deployer {
	return &Deployer{
		codec: codec,
		opts:  opts,
	}
}

// CalculateSize refreshes rec.SizeBytes from the archive on disk. A record
// without an archive path is left untouched.
func (d *Deployer) CalculateSize(rec *types.Record) error {
	if rec.ArchivePath == "" {
		return nil
	}
	size, err := PathSize(rec.ArchivePath)
	if err != nil {
		return err
	}
	rec.SetSize(size)
	return nil
}

// PathSize returns the length of a file or the summed length of every file
// below a directory. Entries that cannot be read inside a directory are
// skipped.
func PathSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s does not exist", types.ErrInvalidArchive, path)
		}
		return 0, fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, path, err)
	}

	switch {
	case info.Mode().IsRegular():
		return uint64(info.Size()), nil
	case info.IsDir():
		var total uint64
		_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if fi, err := d.Info(); err == nil {
				total += uint64(fi.Size())
			}
			return nil
		})
		return total, nil
	default:
		return 0, fmt.Errorf("%w: %s is neither a file nor a directory", types.ErrInvalidArchive, path)
	}
}

// Deploy materializes rec's archive under target and records the result.
// On failure the record's deployment fields are left unchanged.
func (d *Deployer) Deploy(rec *types.Record, target string) error {
	logger := log.WithComponent("deploy")

	if rec.IsDeployed() && !d.opts.AllowRedeploy {
		return fmt.Errorf("%w: %q is already deployed to %s", types.ErrInvalidOperation, rec.Title, rec.DeployedPath)
	}
	if rec.ArchivePath == "" {
		return fmt.Errorf("%w: %q has no archive path", types.ErrInvalidOperation, rec.Title)
	}

	format, err := archive.DetectFormat(rec.ArchivePath)
	if err != nil {
		return err
	}

	target, err = filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %v", types.ErrFilesystem, target, err)
	}

	created, err := prepareTarget(target)
	if err != nil {
		return err
	}

	needsEmpty := format == archive.FormatDirectory || format.IsArchive()
	if needsEmpty && !created {
		empty, err := isEmptyDir(target)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("%w: target directory %s is not empty", types.ErrInvalidOperation, target)
		}
	}

	logger.Info().
		Str("entry_id", rec.ID).
		Str("format", string(format)).
		Str("archive", rec.ArchivePath).
		Str("target", target).
		Msg("Deploying entry")

	if err := d.codec.Decompress(rec.ArchivePath, target, rec.ArchivePassword); err != nil {
		if created {
			os.RemoveAll(target)
		}
		return fmt.Errorf("deploying %q: %w", rec.Title, err)
	}

	if format == archive.FormatPlain {
		rec.SetDeployment(filepath.Join(target, filepath.Base(rec.ArchivePath)), types.DeployTypeCopyFile)
	} else {
		rec.SetDeployment(target, types.DeployTypeDirectory)
	}

	logger.Info().
		Str("entry_id", rec.ID).
		Str("deployed_path", rec.DeployedPath).
		Str("deployed_type", string(rec.DeployedType)).
		Msg("Entry deployed")
	return nil
}

// Undeploy removes the deployed contents and clears the deployment fields.
// When the tracked deployment is missing or inconsistent with the disk, the
// fields are cleared anyway and ErrInvalidOperation is returned.
func (d *Deployer) Undeploy(rec *types.Record) error {
	logger := log.WithComponent("deploy")

	invalid := func(reason string) error {
		logger.Warn().
			Str("entry_id", rec.ID).
			Str("deployed_path", rec.DeployedPath).
			Str("reason", reason).
			Msg("Normalizing inconsistent deployment")
		rec.ClearDeployment()
		return fmt.Errorf("%w: undeploying %q without a valid deployed path: %s",
			types.ErrInvalidOperation, rec.Title, reason)
	}

	if rec.DeployedPath == "" || rec.DeployedType == "" {
		return invalid("no deployment tracked")
	}

	info, err := os.Stat(rec.DeployedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid("path no longer exists")
		}
		return fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, rec.DeployedPath, err)
	}

	switch rec.DeployedType {
	case types.DeployTypeDirectory:
		if !info.IsDir() {
			return invalid("expected a directory")
		}
		logger.Info().Str("entry_id", rec.ID).Str("path", rec.DeployedPath).Msg("Clearing directory")
		if err := clearDir(rec.DeployedPath); err != nil {
			return err
		}
	case types.DeployTypeCopyFile:
		if !info.Mode().IsRegular() {
			return invalid("expected a file")
		}
		logger.Info().Str("entry_id", rec.ID).Str("path", rec.DeployedPath).Msg("Deleting file")
		if err := os.Remove(rec.DeployedPath); err != nil {
			return fmt.Errorf("%w: removing %s: %v", types.ErrFilesystem, rec.DeployedPath, err)
		}
	default:
		return invalid("unknown deploy type " + string(rec.DeployedType))
	}

	rec.ClearDeployment()
	return nil
}

// prepareTarget creates target when missing and rejects existing files.
// It reports whether the directory was created.
func prepareTarget(target string) (bool, error) {
	info, err := os.Stat(target)
	switch {
	case err == nil && !info.IsDir():
		return false, fmt.Errorf("%w: deploy target %s is a file", types.ErrInvalidOperation, target)
	case err == nil:
		return false, nil
	case !os.IsNotExist(err):
		return false, fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, target, err)
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return false, fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, target, err)
	}
	return true, nil
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, fmt.Errorf("%w: opening %s: %v", types.ErrFilesystem, dir, err)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", types.ErrFilesystem, dir, err)
	}
	return false, nil
}

// clearDir removes everything inside dir but keeps dir itself
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrFilesystem, dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("%w: removing %s: %v", types.ErrFilesystem, path, err)
		}
	}
	return nil
}
