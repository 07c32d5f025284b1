// Package git reports the working tree state of the files insert-docs is
// about to overwrite, so uncommitted edits to a section are not lost.
package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrDirty is returned by Check when an affected file has uncommitted changes.
var ErrDirty = errors.New("uncommitted changes detected in affected files")

// Status is the state of one file relative to its repository.
type Status int

const (
	// Orphan files are not part of any git repository.
	Orphan Status = iota
	// Current files have no changes.
	Current
	// Staged files have changes in the index only.
	Staged
	// Dirty files have changes in the working tree or are untracked.
	Dirty
)

func (s Status) String() string {
	switch s {
	case Orphan:
		return "orphan"
	case Current:
		return "current"
	case Staged:
		return "staged"
	case Dirty:
		return "dirty"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Entry is the status of one requested path.
type Entry struct {
	Path   string
	Status Status
	Err    error
}

type repo struct {
	root   string
	status git.Status
	err    error
}

// FileStatus returns one entry per path, in the same order. Paths in the
// same repository share a single worktree status computation.
func FileStatus(paths []string) []Entry {
	repos := map[string]*repo{}
	entries := make([]Entry, 0, len(paths))

	for _, p := range paths {
		entry := Entry{Path: p}
		entry.Status, entry.Err = fileStatus(repos, p)
		entries = append(entries, entry)
	}

	return entries
}

func fileStatus(repos map[string]*repo, path string) (Status, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Orphan, fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return Orphan, fmt.Errorf("stat file: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	r, err := openRepo(repos, filepath.Dir(abs))
	if err != nil {
		return Orphan, err
	}
	if r == nil {
		return Orphan, nil
	}

	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return Orphan, fmt.Errorf("relative path: %w", err)
	}

	// Files missing from the status map are unmodified or ignored.
	fs, ok := r.status[filepath.ToSlash(rel)]
	if !ok {
		return Current, nil
	}

	switch {
	case fs.Worktree != git.Unmodified:
		return Dirty, nil
	case fs.Staging != git.Unmodified:
		return Staged, nil
	default:
		return Current, nil
	}
}

func openRepo(repos map[string]*repo, dir string) (*repo, error) {
	if r, ok := repos[dir]; ok {
		if r == nil {
			return nil, nil
		}
		return r, r.err
	}

	r, err := discover(dir)
	if r == nil && err == nil {
		repos[dir] = nil
		return nil, nil
	}
	if r == nil {
		r = &repo{}
	}
	r.err = err
	repos[dir] = r

	return r, err
}

func discover(dir string) (*repo, error) {
	repository, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	wt, err := repository.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}

	root := wt.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return &repo{root: root, status: status}, nil
}

// DirtyFiles returns the paths with uncommitted changes. Staged changes are
// accepted when allowStaged is set. Paths whose status cannot be determined
// are not reported.
func DirtyFiles(paths []string, allowStaged bool) []string {
	var dirty []string
	for _, e := range FileStatus(paths) {
		if e.Err != nil {
			continue
		}
		if e.Status == Dirty || (e.Status == Staged && !allowStaged) {
			dirty = append(dirty, e.Path)
		}
	}
	return dirty
}

// Check fails with ErrDirty, listing the files, when DirtyFiles reports any.
func Check(paths []string, allowStaged bool) error {
	return DirtyError(DirtyFiles(paths, allowStaged))
}

// DirtyError wraps ErrDirty with the list of dirty files, or returns nil
// for an empty list.
func DirtyError(files []string) error {
	if len(files) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%s", ErrDirty, strings.Join(files, "\n"))
}
