package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhyVis/meta-manager/pkg/types"
)

var idPattern = regexp.MustCompile(`ID: ([0-9a-f-]{36})`)

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(config, []byte(`data_dir = "data"

[log]
level = "error"

[archive]
prefer_external = false
compression_level = 1

[backup]
keep = 0
`), 0644))
	return &cli{t: t, dir: dir, config: config}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(append([]string{"--config", c.config}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func (c *cli) writeTree(name string, files map[string]string) string {
	c.t.Helper()
	root := filepath.Join(c.dir, name)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(c.t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(c.t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func extractID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	require.NotNil(t, m, "no id in output: %s", out)
	return m[1]
}

func TestAddListGetDelete(t *testing.T) {
	c := newCLI(t)
	source := c.writeTree("game", map[string]string{"game.exe": "0123456789"})

	out := c.mustRun("add", "--title", "Portal 2", "--platform", "Steam", "--platform-id", "620", "--type", "game", source)
	assert.Contains(t, out, "Entry added: Portal 2")
	id := extractID(t, out)

	out = c.mustRun("list")
	assert.Contains(t, out, "Portal 2")
	assert.Contains(t, out, "Steam 620")
	assert.Contains(t, out, "1 entries")

	out = c.mustRun("get", id[:8])
	assert.Contains(t, out, "Portal 2")
	assert.Contains(t, out, "Game")
	assert.Contains(t, out, "10 B")

	out = c.mustRun("delete", id)
	assert.Contains(t, out, "Entry deleted: Portal 2")

	_, err := c.run("get", id)
	require.Error(t, err)
}

func TestAddRejectsUnknownContentType(t *testing.T) {
	c := newCLI(t)
	source := c.writeTree("x", map[string]string{"a": "a"})

	_, err := c.run("add", "--title", "X", "--type", "Podcast", source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content type")
}

func TestErrorsAreFlattened(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("get", "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, errors.Is(err, types.ErrNotFound), "error kinds do not cross the CLI boundary")
}

func TestDeployUndeploy(t *testing.T) {
	c := newCLI(t)
	source := c.writeTree("src", map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	id := extractID(t, c.mustRun("add", "--title", "Deployable", source))

	target := filepath.Join(c.dir, "out")
	out := c.mustRun("deploy", id, target)
	assert.Contains(t, out, "Deployed Deployable")
	assert.FileExists(t, filepath.Join(target, "sub", "b.txt"))

	_, err := c.run("deploy", id, filepath.Join(c.dir, "other"))
	require.Error(t, err, "already deployed")
	assert.Contains(t, err.Error(), "already deployed")

	out = c.mustRun("undeploy", id)
	assert.Contains(t, out, "Removed deployment")
	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = c.run("undeploy", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid operation")
}

func TestCreateFromFolder(t *testing.T) {
	c := newCLI(t)
	source := c.writeTree("folder", map[string]string{"readme.txt": "hello"})

	out := c.mustRun("create", "--title", "Packed", "--platform", "DLSite", "--platform-id", "RJ01", source)
	assert.Contains(t, out, filepath.Join("archive", "DLSite", "RJ01.7z"))
	assert.FileExists(t, filepath.Join(c.dir, "data", "archive", "DLSite", "RJ01.7z"))
	id := extractID(t, out)

	target := filepath.Join(c.dir, "deployed")
	c.mustRun("deploy", id, target)
	data, err := os.ReadFile(filepath.Join(target, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCompress(t *testing.T) {
	c := newCLI(t)
	source := c.writeTree("folder", map[string]string{"a.txt": "a"})

	dest := filepath.Join(c.dir, "out.7z")
	c.mustRun("compress", source, dest)
	assert.FileExists(t, dest)

	_, err := c.run("compress", source, filepath.Join(c.dir, "out.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only .7z")
}

func TestApplyManifest(t *testing.T) {
	c := newCLI(t)
	c.writeTree("archives", map[string]string{"one/data.bin": "12345"})

	manifest := filepath.Join(c.dir, "library.yaml")
	write := func(title string) {
		require.NoError(t, os.WriteFile(manifest, []byte(fmt.Sprintf(`entries:
  - id: 11111111-2222-3333-4444-555555555555
    title: %s
    content_type: comic
    platform: itch
    archive: archives/one
    tags:
      - name: indie
  - title: Unarchived
`, title)), 0644))
	}

	write("First")
	out := c.mustRun("apply", "-f", manifest)
	assert.Contains(t, out, "Entry inserted: First")
	assert.Contains(t, out, "Entry inserted: Unarchived")

	write("Renamed")
	out = c.mustRun("apply", "-f", manifest)
	assert.Contains(t, out, "Entry updated: Renamed")

	out = c.mustRun("get", "11111111-2222-3333-4444-555555555555")
	assert.Contains(t, out, "Renamed")
	assert.Contains(t, out, "Comic")
	assert.Contains(t, out, "itch")
	assert.Contains(t, out, "5 B")
	assert.Contains(t, out, "indie")
}

func TestApplyRequiresTitle(t *testing.T) {
	c := newCLI(t)
	manifest := filepath.Join(c.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("entries:\n  - platform: Steam\n"), 0644))

	_, err := c.run("apply", "-f", manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")
}

func TestExportImport(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("import")
	assert.Contains(t, out, "nothing imported")

	source := c.writeTree("src", map[string]string{"a": "a"})
	c.mustRun("add", "--title", "Exported", source)

	out = c.mustRun("export")
	assert.Contains(t, out, "library.json")
	assert.FileExists(t, filepath.Join(c.dir, "data", "library.json"))

	out = c.mustRun("import")
	assert.Contains(t, out, "Library imported")
}

func TestDoctor(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("doctor")
	assert.Contains(t, out, "data dir")
	assert.Contains(t, out, "0 entries")
	assert.Contains(t, out, "in-process")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	var stdout bytes.Buffer
	require.NoError(t, execute([]string{"--config", path, "config", "init"}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "Config written")
	assert.FileExists(t, path)

	stdout.Reset()
	require.NoError(t, execute([]string{"--config", path, "config", "init"}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "already exists")

	stdout.Reset()
	require.NoError(t, execute([]string{"--config", path, "config", "show"}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "archive.compression_level  = 5")
}

func TestMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	textfile := filepath.Join(c.dir, "metamgr.prom")

	c.mustRun("--metrics-textfile", textfile, "list")

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "meta_manager_entries_total 0")
	assert.Contains(t, string(data), `meta_manager_operations_total{operation="list",result="ok"}`)
}
