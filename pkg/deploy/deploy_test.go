package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yzip "github.com/yeka/zip"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/types"
)

func newTestDeployer(opts Options) *Deployer {
	return NewDeployer(archive.NewRegistry(archive.Options{PreferExternal: false}), opts)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPathSize(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.bin":        strings.Repeat("a", 10),
		"sub/b.bin":    strings.Repeat("b", 20),
		"sub/deep/c.x": strings.Repeat("c", 30),
	})

	size, err := PathSize(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), size)

	size, err = PathSize(filepath.Join(dir, "sub", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), size)

	_, err = PathSize(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
}

func TestPathSizeSkipsUnreadableEntries(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.bin": strings.Repeat("a", 10)})
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "dangling")))

	size, err := PathSize(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), size)
}

func TestCalculateSize(t *testing.T) {
	d := newTestDeployer(Options{})

	t.Run("no archive path is a no-op", func(t *testing.T) {
		rec := types.NewRecord("Untitled", types.NewPlatform(types.PlatformUnknown), "", "")
		require.NoError(t, d.CalculateSize(rec))
		_, ok := rec.Size()
		assert.False(t, ok)
	})

	t.Run("directory archive", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"x": "1234567890", "y/z": "12345"})
		rec := types.NewRecord("Dir", types.NewPlatform(types.PlatformSteam), "1", dir)

		require.NoError(t, d.CalculateSize(rec))
		size, ok := rec.Size()
		assert.True(t, ok)
		assert.Equal(t, uint64(15), size)
	})

	t.Run("missing archive", func(t *testing.T) {
		rec := types.NewRecord("Gone", types.NewPlatform(types.PlatformSteam), "1", filepath.Join(t.TempDir(), "gone.zip"))
		assert.ErrorIs(t, d.CalculateSize(rec), types.ErrInvalidArchive)
	})
}

func TestDeployDirectoryAndUndeploy(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"game.exe": "exe", "data/a.dat": "a"})

	rec := types.NewRecord("Dir Game", types.NewPlatform(types.PlatformDLSite), "RJ01", src)
	before := rec.DateUpdated

	target := filepath.Join(t.TempDir(), "deployed")
	d := newTestDeployer(Options{})
	require.NoError(t, d.Deploy(rec, target))

	assert.Equal(t, target, rec.DeployedPath)
	assert.Equal(t, types.DeployTypeDirectory, rec.DeployedType)
	assert.True(t, rec.DateUpdated.After(before))
	assert.ElementsMatch(t, []string{"game.exe", "data"}, dirEntries(t, target))

	require.NoError(t, d.Undeploy(rec))
	assert.False(t, rec.IsDeployed())
	assert.Empty(t, rec.DeployedPath)
	assert.Empty(t, rec.DeployedType)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Empty(t, dirEntries(t, target))
}

func TestDeployRejectsNonEmptyTarget(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"game.exe": "exe"})

	target := t.TempDir()
	writeFiles(t, target, map[string]string{"existing.txt": "keep me"})

	rec := types.NewRecord("Busy", types.NewPlatform(types.PlatformSteam), "9", src)
	snapshot := rec.Clone()

	err := newTestDeployer(Options{}).Deploy(rec, target)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
	assert.Equal(t, snapshot.DeployedPath, rec.DeployedPath)
	assert.Equal(t, snapshot.DeployedType, rec.DeployedType)
	assert.True(t, snapshot.DateUpdated.Equal(rec.DateUpdated))
	assert.Equal(t, []string{"existing.txt"}, dirEntries(t, target))
}

func TestDeployRejectsFileTarget(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"game.exe": "exe"})
	target := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	rec := types.NewRecord("FileTarget", types.NewPlatform(types.PlatformSteam), "9", src)
	err := newTestDeployer(Options{}).Deploy(rec, target)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
	assert.False(t, rec.IsDeployed())
}

func TestDeployRequiresArchive(t *testing.T) {
	d := newTestDeployer(Options{})

	rec := types.NewRecord("NoArchive", types.NewPlatform(types.PlatformSteam), "9", "")
	assert.ErrorIs(t, d.Deploy(rec, t.TempDir()), types.ErrInvalidOperation)

	rec.ArchivePath = filepath.Join(t.TempDir(), "missing.7z")
	assert.ErrorIs(t, d.Deploy(rec, t.TempDir()), types.ErrInvalidArchive)
	assert.False(t, rec.IsDeployed())
}

func TestDeployEncryptedZipScenario(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "game.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	w := yzip.NewWriter(f)
	for name, content := range map[string]string{"game.exe": "payload", "data/level.dat": "level"} {
		fw, err := w.Encrypt(name, "abc", yzip.StandardEncryption)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	rec := types.NewRecord("Zip Game", types.OtherPlatform("itch"), "z1", archivePath)
	rec.ArchivePassword = "abc"

	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(out, 0755))

	d := newTestDeployer(Options{})
	require.NoError(t, d.Deploy(rec, out))
	assert.Equal(t, types.DeployTypeDirectory, rec.DeployedType)
	assert.Equal(t, out, rec.DeployedPath)

	data, err := os.ReadFile(filepath.Join(out, "data", "level.dat"))
	require.NoError(t, err)
	assert.Equal(t, "level", string(data))

	require.NoError(t, d.Undeploy(rec))
	assert.Empty(t, dirEntries(t, out))
	assert.False(t, rec.IsDeployed())
}

func TestDeployCopyFile(t *testing.T) {
	installer := filepath.Join(t.TempDir(), "Setup.EXE")
	require.NoError(t, os.WriteFile(installer, []byte("installer"), 0755))

	target := t.TempDir()
	writeFiles(t, target, map[string]string{"other.txt": "unrelated"})

	rec := types.NewRecord("Installer", types.NewPlatform(types.PlatformSteam), "7", installer)
	d := newTestDeployer(Options{})
	require.NoError(t, d.Deploy(rec, target))

	assert.Equal(t, types.DeployTypeCopyFile, rec.DeployedType)
	assert.Equal(t, filepath.Join(target, "Setup.EXE"), rec.DeployedPath)

	require.NoError(t, d.Undeploy(rec))
	assert.Equal(t, []string{"other.txt"}, dirEntries(t, target))
	assert.False(t, rec.IsDeployed())
}

func TestDeployAlreadyDeployed(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"game.exe": "exe"})

	first := filepath.Join(t.TempDir(), "first")
	second := filepath.Join(t.TempDir(), "second")

	t.Run("rejected by default", func(t *testing.T) {
		rec := types.NewRecord("Twice", types.NewPlatform(types.PlatformSteam), "1", src)
		d := newTestDeployer(Options{})
		require.NoError(t, d.Deploy(rec, first))

		err := d.Deploy(rec, second)
		assert.ErrorIs(t, err, types.ErrInvalidOperation)
		assert.Equal(t, first, rec.DeployedPath)
	})

	t.Run("allowed by policy", func(t *testing.T) {
		rec := types.NewRecord("Twice", types.NewPlatform(types.PlatformSteam), "1", src)
		rec.SetDeployment(filepath.Join(t.TempDir(), "old"), types.DeployTypeDirectory)

		d := newTestDeployer(Options{AllowRedeploy: true})
		require.NoError(t, d.Deploy(rec, second))
		assert.Equal(t, second, rec.DeployedPath)
	})
}

func TestDeployFailureRemovesCreatedTarget(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0644))

	target := filepath.Join(t.TempDir(), "fresh")
	rec := types.NewRecord("Broken", types.NewPlatform(types.PlatformSteam), "1", broken)

	err := newTestDeployer(Options{}).Deploy(rec, target)
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
	assert.False(t, rec.IsDeployed())

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUndeployNormalizesInconsistentState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, rec *types.Record)
	}{
		{
			name:  "nothing tracked",
			setup: func(t *testing.T, rec *types.Record) {},
		},
		{
			name: "path without type",
			setup: func(t *testing.T, rec *types.Record) {
				rec.DeployedPath = t.TempDir()
			},
		},
		{
			name: "path vanished",
			setup: func(t *testing.T, rec *types.Record) {
				rec.DeployedPath = filepath.Join(t.TempDir(), "gone")
				rec.DeployedType = types.DeployTypeDirectory
			},
		},
		{
			name: "directory expected but file found",
			setup: func(t *testing.T, rec *types.Record) {
				path := filepath.Join(t.TempDir(), "file")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
				rec.DeployedPath = path
				rec.DeployedType = types.DeployTypeDirectory
			},
		},
		{
			name: "file expected but directory found",
			setup: func(t *testing.T, rec *types.Record) {
				rec.DeployedPath = t.TempDir()
				rec.DeployedType = types.DeployTypeCopyFile
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := types.NewRecord("Drifted", types.NewPlatform(types.PlatformSteam), "1", "")
			tt.setup(t, rec)
			before := rec.DateUpdated

			err := newTestDeployer(Options{}).Undeploy(rec)
			assert.ErrorIs(t, err, types.ErrInvalidOperation)
			assert.Empty(t, rec.DeployedPath)
			assert.Empty(t, rec.DeployedType)
			assert.True(t, rec.DateUpdated.After(before))
		})
	}
}
