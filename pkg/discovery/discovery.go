// Package discovery locates the enclosing Git work tree for a path and
// enumerates the files it tracks, the same universe of files every other
// holdfast stage (hashing, reconciliation, garbage collection) operates
// over.
package discovery

import (
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// gitlinkMode is the index entry mode Git uses for a submodule commit
// pointer. Such entries look like directories on disk but aren't files
// holdfast can meaningfully hash or set timestamps on.
const gitlinkMode = filemode.Submodule

// Result carries the outcome of a tracked-file walk: the absolute
// repository root, the tracked file paths relative to that root, and a
// count of tracked symbolic links that were skipped.
type Result struct {
	Root            string
	Files           []string
	SymlinksSkipped int
}

// Discover finds the Git work tree enclosing startPath (searching upward
// through parent directories, same as `git rev-parse --show-toplevel`) and
// returns every regular file tracked in its index.
//
// Tracked symbolic links are counted but excluded from Files: holdfast
// never hashes or stamps a symlink, since following one outside the work
// tree would be both meaningless and unsafe. Submodule gitlinks are
// excluded outright since they aren't files at all.
func Discover(startPath string) (*Result, error) {
	repo, err := git.PlainOpenWithOptions(startPath, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, holderrors.RepoNotFoundAt(startPath)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, holderrors.RepoNotFoundAt(startPath)
	}
	root := worktree.Filesystem.Root()

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, holderrors.IO(root, err)
	}

	files := make([]string, 0, len(idx.Entries))
	symlinksSkipped := 0
	for _, entry := range idx.Entries {
		if entry.Mode == gitlinkMode {
			continue
		}

		if !utf8.ValidString(entry.Name) {
			return nil, holderrors.InvalidPathEntry("invalid UTF-8 in tracked path " + entry.Name)
		}

		if entry.Mode == filemode.Symlink {
			symlinksSkipped++
			continue
		}

		// entry.Name is already forward-slash-separated, matching the Git
		// index wire format; it stays that way in Files so it round-trips
		// into FileRecord.Path unchanged (see pkg/manifest's portability
		// invariant). Callers convert to the host separator only at the
		// point of filesystem access.
		files = append(files, entry.Name)
	}

	return &Result{Root: root, Files: files, SymlinksSkipped: symlinksSkipped}, nil
}
