package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/types"
)

const (
	// DefaultLevel is the compression level used when the caller has no preference
	DefaultLevel = 5

	// MaxLevel is the strongest supported compression level
	MaxLevel = 9
)

// Format identifies how an archive path is handled
type Format string

const (
	FormatDirectory Format = "directory"
	FormatZip       Format = "zip"
	FormatRar       Format = "rar"
	FormatSevenZip  Format = "7z"
	FormatPlain     Format = "plain"
)

// IsArchive reports whether the format is extracted rather than copied
func (f Format) IsArchive() bool {
	return f == FormatZip || f == FormatRar || f == FormatSevenZip
}

// FormatFromName picks a format from the file extension, case-insensitively.
// Unknown extensions are plain files.
func FormatFromName(name string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "zip":
		return FormatZip
	case "rar":
		return FormatRar
	case "7z":
		return FormatSevenZip
	default:
		return FormatPlain
	}
}

// DetectFormat stats path and classifies it. Missing paths and special
// files are reported as ErrInvalidArchive.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", types.ErrInvalidArchive, path)
		}
		return "", fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, path, err)
	}
	switch {
	case info.IsDir():
		return FormatDirectory, nil
	case info.Mode().IsRegular():
		return FormatFromName(path), nil
	default:
		return "", fmt.Errorf("%w: unexpected file type for %s", types.ErrInvalidArchive, path)
	}
}

// Codec is the uniform archive capability consumed by deployment and the
// library facade. An empty password means "no password".
type Codec interface {
	// Decompress materializes archivePath inside destDir
	Decompress(archivePath, destDir, password string) error

	// Compress packs the contents of srcDir into destArchive
	Compress(srcDir, destArchive string, opts CompressOptions) error
}

// CompressOptions tune Compress. A negative Level selects DefaultLevel.
type CompressOptions struct {
	Password string
	Level    int
}

func (o CompressOptions) level() int {
	switch {
	case o.Level < 0:
		return DefaultLevel
	case o.Level > MaxLevel:
		return MaxLevel
	default:
		return o.Level
	}
}

// Extractor unpacks one archive format into a directory
type Extractor interface {
	Extract(archivePath, destDir, password string) error
}

// Options configure a Registry
type Options struct {
	// PreferExternal allows the 7z command-line tool to be used when present
	PreferExternal bool

	// SevenZipBinary is the executable probed for; defaults to "7z"
	SevenZipBinary string
}

// Registry implements Codec by dispatching to per-format extractors
type Registry struct {
	extractors map[Format]Extractor
	sevenZip   *SevenZip
}

// NewRegistry wires the built-in extractors
func NewRegistry(opts Options) *Registry {
	sevenZip := NewSevenZip(opts.SevenZipBinary, opts.PreferExternal)
	return &Registry{
		extractors: map[Format]Extractor{
			FormatDirectory: directoryExtractor{},
			FormatZip:       zipExtractor{},
			FormatRar:       rarExtractor{},
			FormatSevenZip:  sevenZip,
			FormatPlain:     plainExtractor{},
		},
		sevenZip: sevenZip,
	}
}

// GetExtractor returns the extractor registered for a format
func (r *Registry) GetExtractor(format Format) (Extractor, error) {
	extractor, ok := r.extractors[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, format)
	}
	return extractor, nil
}

// SevenZip exposes the 7z strategy holder, mainly for diagnostics
func (r *Registry) SevenZip() *SevenZip {
	return r.sevenZip
}

// Decompress dispatches on the archive's format
func (r *Registry) Decompress(archivePath, destDir, password string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}
	extractor, err := r.GetExtractor(format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, destDir, err)
	}

	logger := log.WithComponent("archive")
	logger.Info().
		Str("format", string(format)).
		Str("archive", archivePath).
		Str("dest", destDir).
		Msg("Decompressing archive")

	return extractor.Extract(archivePath, destDir, password)
}

// Compress only produces 7z archives
func (r *Registry) Compress(srcDir, destArchive string, opts CompressOptions) error {
	if FormatFromName(destArchive) != FormatSevenZip {
		return fmt.Errorf("%w: cannot create %s, only .7z output is supported",
			types.ErrUnsupportedFormat, filepath.Base(destArchive))
	}
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: compress source %s is not a directory", types.ErrInvalidOperation, srcDir)
	}
	if err := os.MkdirAll(filepath.Dir(destArchive), 0755); err != nil {
		return fmt.Errorf("%w: %v", types.ErrFilesystem, err)
	}

	return r.sevenZip.Compress(srcDir, destArchive, opts)
}

// directoryExtractor deploys a directory "archive" by copying it
type directoryExtractor struct{}

func (directoryExtractor) Extract(archivePath, destDir, _ string) error {
	return CopyDir(archivePath, destDir)
}

// plainExtractor copies an opaque file into destDir under its own name
type plainExtractor struct{}

func (plainExtractor) Extract(archivePath, destDir, _ string) error {
	_, err := CopyFileInto(archivePath, destDir)
	return err
}
