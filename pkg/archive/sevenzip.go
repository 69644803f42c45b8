package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bodgit/sevenzip"

	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/types"
)

// SevenZipBackend is one way of reading and writing 7z archives
type SevenZipBackend interface {
	Name() string
	Extract(archivePath, destDir, password string) error
	Create(srcDir, destArchive, password string, level int) error
}

// SevenZip selects a backend once, on first use, and caches it
type SevenZip struct {
	binary         string
	preferExternal bool

	once    sync.Once
	backend SevenZipBackend
}

// NewSevenZip creates the strategy holder. An empty binary means "7z".
func NewSevenZip(binary string, preferExternal bool) *SevenZip {
	if binary == "" {
		binary = "7z"
	}
	return &SevenZip{binary: binary, preferExternal: preferExternal}
}

// Backend returns the selected backend, probing for the external tool on
// the first call.
func (s *SevenZip) Backend() SevenZipBackend {
	s.once.Do(func() {
		logger := log.WithComponent("archive")
		if s.preferExternal && ProbeExternal(s.binary) {
			s.backend = &ExternalSevenZip{Binary: s.binary}
		} else {
			s.backend = InProcessSevenZip{}
		}
		logger.Debug().Str("backend", s.backend.Name()).Msg("Selected 7z backend")
	})
	return s.backend
}

// Extract implements Extractor
func (s *SevenZip) Extract(archivePath, destDir, password string) error {
	return s.Backend().Extract(archivePath, destDir, password)
}

// Compress creates destArchive from the contents of srcDir
func (s *SevenZip) Compress(srcDir, destArchive string, opts CompressOptions) error {
	logger := log.WithComponent("archive")
	backend := s.Backend()
	logger.Info().
		Str("backend", backend.Name()).
		Str("src", srcDir).
		Str("archive", destArchive).
		Int("level", opts.level()).
		Bool("encrypted", opts.Password != "").
		Msg("Compressing directory")

	// 7z a updates an existing archive in place; always start from scratch
	if err := os.Remove(destArchive); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: replacing %s: %v", types.ErrFilesystem, destArchive, err)
	}
	return backend.Create(srcDir, destArchive, opts.Password, opts.level())
}

// ProbeExternal reports whether binary is on PATH and answers --help
func ProbeExternal(binary string) bool {
	path, err := exec.LookPath(binary)
	if err != nil {
		return false
	}
	return exec.Command(path, "--help").Run() == nil
}

// ExternalSevenZip shells out to the 7z command-line tool
type ExternalSevenZip struct {
	Binary string
}

func (e *ExternalSevenZip) Name() string { return "external:" + e.Binary }

func (e *ExternalSevenZip) Extract(archivePath, destDir, password string) error {
	args := []string{"x", archivePath, "-o" + destDir, "-aoa", "-y"}
	if password != "" {
		args = append(args, "-p"+password)
	}
	return e.run("", args)
}

func (e *ExternalSevenZip) Create(srcDir, destArchive, password string, level int) error {
	out, err := filepath.Abs(destArchive)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrFilesystem, err)
	}
	args := []string{"a", "-t7z", "-mx=" + strconv.Itoa(level), "-y"}
	if password != "" {
		args = append(args, "-p"+password, "-mhe=on")
	}
	args = append(args, out, "*")
	return e.run(srcDir, args)
}

func (e *ExternalSevenZip) run(dir string, args []string) error {
	cmd := exec.Command(e.Binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "wrong password") {
			return fmt.Errorf("%w: %s", types.ErrWrongPassword, msg)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%w: %s %s exited with %d: %s",
				types.ErrInvalidArchive, e.Binary, args[0], exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("%w: running %s: %v", types.ErrFilesystem, e.Binary, err)
	}
	return nil
}

// InProcessSevenZip reads with bodgit/sevenzip and writes with the built-in
// writer. It does not encrypt headers.
type InProcessSevenZip struct{}

func (InProcessSevenZip) Name() string { return "in-process" }

func (InProcessSevenZip) Extract(archivePath, destDir, password string) error {
	var (
		r   *sevenzip.ReadCloser
		err error
	)
	if password != "" {
		r, err = sevenzip.OpenReaderWithPassword(archivePath, password)
	} else {
		r, err = sevenzip.OpenReader(archivePath)
	}
	if err != nil {
		return sevenZipError(archivePath, password, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := mkdirAll(target); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return sevenZipError(archivePath, password, err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (InProcessSevenZip) Create(srcDir, destArchive, password string, level int) error {
	return WriteSevenZip(srcDir, destArchive, password, level)
}

func sevenZipError(archivePath, password string, err error) error {
	if password != "" {
		return fmt.Errorf("%w: 7z %s: %v", types.ErrWrongPassword, archivePath, err)
	}
	return fmt.Errorf("%w: 7z %s: %v", types.ErrInvalidArchive, archivePath, err)
}
