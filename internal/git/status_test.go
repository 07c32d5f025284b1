package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, files map[string]string) (string, *git.Worktree) {
	t.Helper()

	dir := t.TempDir()
	repository, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repository.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, wt
}

func TestFileStatus(t *testing.T) {
	t.Parallel()

	dir, wt := initRepo(t, map[string]string{
		"README.md":  "# readme\n",
		"src/lib.rs": "//! docs\n",
		"Cargo.toml": "[package]\n",
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src/lib.rs"), []byte("//! changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"x\"\n"), 0o644))
	_, err := wt.Add("Cargo.toml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("new\n"), 0o644))

	entries := FileStatus([]string{
		filepath.Join(dir, "README.md"),
		filepath.Join(dir, "src", "lib.rs"),
		filepath.Join(dir, "Cargo.toml"),
		filepath.Join(dir, "new.md"),
	})
	require.Len(t, entries, 4)

	want := []Status{Current, Dirty, Staged, Dirty}
	for i, e := range entries {
		require.NoError(t, e.Err, e.Path)
		assert.Equal(t, want[i], e.Status, e.Path)
	}
}

func TestFileStatusOrphan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	entries := FileStatus([]string{path})
	require.Len(t, entries, 1)
	assert.NoError(t, entries[0].Err)
	assert.Equal(t, Orphan, entries[0].Status)
}

func TestFileStatusMissing(t *testing.T) {
	t.Parallel()

	entries := FileStatus([]string{filepath.Join(t.TempDir(), "missing.md")})
	require.Len(t, entries, 1)
	assert.Error(t, entries[0].Err)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	dir, wt := initRepo(t, map[string]string{
		"README.md":  "# readme\n",
		"src/lib.rs": "//! docs\n",
	})
	readme := filepath.Join(dir, "README.md")
	lib := filepath.Join(dir, "src", "lib.rs")

	assert.NoError(t, Check([]string{readme, lib}, false))

	require.NoError(t, os.WriteFile(readme, []byte("# changed\n"), 0o644))
	_, err := wt.Add("README.md")
	require.NoError(t, err)

	err = Check([]string{readme, lib}, false)
	require.ErrorIs(t, err, ErrDirty)
	assert.Equal(t, "uncommitted changes detected in affected files:\n"+readme, err.Error())

	assert.NoError(t, Check([]string{readme, lib}, true))

	require.NoError(t, os.WriteFile(lib, []byte("//! changed\n"), 0o644))
	err = Check([]string{readme, lib}, true)
	require.ErrorIs(t, err, ErrDirty)
	assert.Contains(t, err.Error(), lib)
	assert.NotContains(t, err.Error(), readme)
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "orphan", Orphan.String())
	assert.Equal(t, "current", Current.String())
	assert.Equal(t, "staged", Staged.String())
	assert.Equal(t, "dirty", Dirty.String())
}
