package gitutil

import (
	"context"
	"fmt"

	"github.com/r-three/git-theta-go/pkg/manifest"
)

// ShowFile returns the contents of path as it existed at commit, via
// `git show <commit>:<path>`.
func ShowFile(ctx context.Context, repo *Repo, commit, path string) ([]byte, error) {
	out, err := runOutput(ctx, repo, "show", fmt.Sprintf("%s:%s", commit, path))
	if err != nil {
		return nil, fmt.Errorf("gitutil: reading %s at %s: %w", path, commit, err)
	}
	return []byte(out), nil
}

// History resolves a parameter manifest as committed at a given revision
// by reading the tracked working-tree file's blob at that commit and
// parsing it. Implements smudge.History and backs the per-branch
// Fetchers a three-way merge needs to walk delta chains that cross
// commits.
type History struct {
	Repo *Repo
	Path string
}

// ManifestAt parses the manifest as it existed at commit.
func (h *History) ManifestAt(ctx context.Context, commit string) (manifest.Manifest, error) {
	data, err := ShowFile(ctx, h.Repo, commit, h.Path)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}
