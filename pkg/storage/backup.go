package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/RhyVis/meta-manager/pkg/types"
)

const (
	backupPrefix     = "library-"
	backupTimeLayout = "20060102-150405"
)

type backupFile struct {
	path    string
	modTime time.Time
}

// BackupName returns the file name used for a backup taken at t
func BackupName(t time.Time) string {
	return backupPrefix + t.Format(backupTimeLayout) + filepath.Ext(DBFileName)
}

// ListBackups returns the backups in dir, oldest first
func ListBackups(dir string) ([]string, error) {
	files, err := listBackups(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

func listBackups(dir string) ([]backupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrStorage, dir, err)
	}

	var files []backupFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || filepath.Ext(name) != filepath.Ext(DBFileName) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

// rotateBackups copies dbPath into backupDir, first evicting the oldest
// backups so that at most keep remain afterwards. It returns the new
// backup's path, or "" when there was no store file to back up.
func rotateBackups(dbPath, backupDir string, keep int, now time.Time) (string, error) {
	if keep <= 0 {
		return "", nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: stat %s: %v", types.ErrStorage, dbPath, err)
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", types.ErrStorage, backupDir, err)
	}

	existing, err := listBackups(backupDir)
	if err != nil {
		return "", err
	}
	for len(existing) >= keep {
		if err := os.Remove(existing[0].path); err != nil {
			return "", fmt.Errorf("%w: removing old backup %s: %v", types.ErrStorage, existing[0].path, err)
		}
		existing = existing[1:]
	}

	target := filepath.Join(backupDir, BackupName(now))
	for i := 1; fileExists(target); i++ {
		target = filepath.Join(backupDir, fmt.Sprintf("%s%s-%d%s",
			backupPrefix, now.Format(backupTimeLayout), i, filepath.Ext(DBFileName)))
	}

	if err := copyFile(dbPath, target); err != nil {
		return "", err
	}
	return target, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrStorage, src, err)
	}
	if err := os.WriteFile(dst, data, 0600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", types.ErrStorage, dst, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
