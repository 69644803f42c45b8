package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/RhyVis/meta-manager/pkg/types"
)

// CopyDir recursively copies the contents of src into dst, creating dst if
// needed. Symlinks are recreated rather than followed.
func CopyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", types.ErrInvalidArchive, src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, dst, err)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: walking %s: %v", types.ErrFilesystem, path, walkErr)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrFilesystem, err)
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, target, err)
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("%w: reading link %s: %v", types.ErrFilesystem, path, err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return fmt.Errorf("%w: linking %s: %v", types.ErrFilesystem, target, err)
			}
		default:
			if err := copyFile(path, target); err != nil {
				return err
			}
		}
		return nil
	})
}

// CopyFileInto copies src into dir under its base name and returns the new path
func CopyFileInto(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, dir, err)
	}
	target := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, target); err != nil {
		return "", err
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", types.ErrFilesystem, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, src, err)
	}

	return writeFile(dst, in, info.Mode().Perm())
}

// writeFile streams r into path, truncating any existing file
func writeFile(path string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, filepath.Dir(path), err)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("%w: writing %s: %v", types.ErrFilesystem, path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", types.ErrFilesystem, path, err)
	}
	return nil
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, dir, err)
	}
	return nil
}

// safeJoin resolves an archive member name under dest and rejects names
// that would land outside it.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	if cleaned == "." || cleaned == "" {
		return dest, nil
	}
	target := filepath.Join(dest, cleaned)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: member %q escapes the destination", types.ErrInvalidArchive, name)
	}
	return target, nil
}
