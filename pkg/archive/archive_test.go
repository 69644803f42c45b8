package archive

import (
	"os"
	"path/filepath"
	"testing"

	kzip "github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yzip "github.com/yeka/zip"

	"github.com/RhyVis/meta-manager/pkg/types"
)

// writeTree creates files (relative path -> content) under root. A trailing
// slash creates an empty directory.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func assertTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			info, err := os.Stat(path)
			require.NoError(t, err, name)
			assert.True(t, info.IsDir(), name)
			continue
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, content, string(data), name)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := kzip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func writeEncryptedZip(t *testing.T, path, password string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := yzip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Encrypt(name, password, yzip.AES256Encryption)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func newTestRegistry() *Registry {
	return NewRegistry(Options{PreferExternal: false})
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name     string
		expected Format
	}{
		{"game.zip", FormatZip},
		{"GAME.ZIP", FormatZip},
		{"disc.Rar", FormatRar},
		{"bundle.7z", FormatSevenZip},
		{"setup.exe", FormatPlain},
		{"noext", FormatPlain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatFromName(tt.name))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	format, err := DetectFormat(dir)
	require.NoError(t, err)
	assert.Equal(t, FormatDirectory, format)

	format, err = DetectFormat(file)
	require.NoError(t, err)
	assert.Equal(t, FormatZip, format)

	_, err = DetectFormat(filepath.Join(dir, "missing.7z"))
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
}

func TestDecompressDirectory(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"readme.txt":      "hello",
		"data/level1.bin": "0123456789",
		"data/deep/x.txt": "x",
		"empty/":          "",
	}
	writeTree(t, src, files)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, newTestRegistry().Decompress(src, dest, ""))
	assertTree(t, dest, files)
}

func TestDecompressPlainFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "setup.exe")
	require.NoError(t, os.WriteFile(src, []byte("MZ"), 0755))

	dest := t.TempDir()
	require.NoError(t, newTestRegistry().Decompress(src, dest, ""))

	data, err := os.ReadFile(filepath.Join(dest, "setup.exe"))
	require.NoError(t, err)
	assert.Equal(t, "MZ", string(data))
}

func TestDecompressZip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "game.zip")
	files := map[string]string{
		"game.exe":         "binary",
		"assets/map.dat":   "tiles",
		"assets/sub/a.txt": "a",
	}
	writeZip(t, archivePath, files)

	dest := t.TempDir()
	require.NoError(t, newTestRegistry().Decompress(archivePath, dest, ""))
	assertTree(t, dest, files)
}

func TestDecompressEncryptedZip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "GAME.ZIP")
	files := map[string]string{
		"game.exe":       "secret binary",
		"save/slot1.sav": "progress",
	}
	writeEncryptedZip(t, archivePath, "abc", files)

	t.Run("correct password", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, newTestRegistry().Decompress(archivePath, dest, "abc"))
		assertTree(t, dest, files)
	})

	t.Run("wrong password", func(t *testing.T) {
		err := newTestRegistry().Decompress(archivePath, t.TempDir(), "nope")
		assert.ErrorIs(t, err, types.ErrWrongPassword)
	})

	t.Run("missing password", func(t *testing.T) {
		err := newTestRegistry().Decompress(archivePath, t.TempDir(), "")
		assert.ErrorIs(t, err, types.ErrWrongPassword)
	})
}

func TestDecompressZipRejectsEscapingNames(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archivePath, map[string]string{"../escape.txt": "boom"})

	parent := t.TempDir()
	dest := filepath.Join(parent, "out")
	err := newTestRegistry().Decompress(archivePath, dest, "")
	assert.ErrorIs(t, err, types.ErrInvalidArchive)

	_, statErr := os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDecompressMissingArchive(t *testing.T) {
	err := newTestRegistry().Decompress(filepath.Join(t.TempDir(), "gone.rar"), t.TempDir(), "")
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
}

func TestDecompressCorruptRar(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "broken.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a rar archive"), 0644))

	err := newTestRegistry().Decompress(archivePath, t.TempDir(), "")
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
}

func TestCompressOnlySevenZip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	err := newTestRegistry().Compress(src, filepath.Join(t.TempDir(), "out.zip"), CompressOptions{Level: DefaultLevel})
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
}

func TestCompressRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	err := newTestRegistry().Compress(file, filepath.Join(t.TempDir(), "out.7z"), CompressOptions{Level: DefaultLevel})
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestCompressOptionsLevel(t *testing.T) {
	assert.Equal(t, DefaultLevel, CompressOptions{Level: -1}.level())
	assert.Equal(t, 0, CompressOptions{Level: 0}.level())
	assert.Equal(t, MaxLevel, CompressOptions{Level: 42}.level())
}

func TestSafeJoin(t *testing.T) {
	dest := t.TempDir()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"a/b.txt", false},
		{`dir\file.txt`, false},
		{"/abs/path.txt", false},
		{"../up.txt", true},
		{"a/../../up.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := safeJoin(dest, tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidArchive)
				return
			}
			require.NoError(t, err)
			rel, err := filepath.Rel(dest, target)
			require.NoError(t, err)
			assert.NotContains(t, rel, "..")
		})
	}
}
