// Package gitutil wraps the small set of host `git` invocations the tool
// needs: locating the repository root, reading and rewriting
// .gitattributes, and installing the filter/diff/merge driver
// configuration. No Go git library appears anywhere in the retrieval
// pack, so these shell out to the `git` binary via os/exec, the way the
// original tool shells out to the `git` CLI for lfs operations.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Repo is a thin handle on a working tree's git root.
type Repo struct {
	Root string
}

// Discover finds the repository root starting from dir by walking up
// until a .git entry is found, mirroring git.Repo(search_parent_directories=True).
func Discover(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	cur := abs
	for {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return &Repo{Root: cur}, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("gitutil: no .git directory found above %s", abs)
		}
		cur = parent
	}
}

// GitAttributesPath returns $root/.gitattributes.
func (r *Repo) GitAttributesPath() string {
	return filepath.Join(r.Root, ".gitattributes")
}

// ReadGitAttributes returns the lines of .gitattributes, or nil if the
// file does not exist.
func ReadGitAttributes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitutil: reading %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

// WriteGitAttributes writes lines to path, one per line, with a trailing
// newline.
func WriteGitAttributes(path string, lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0o644)
}

var attributeLineRE = regexp.MustCompile(`^\s*(\S+)\s+(.*)$`)

// AddThetaToGitAttributes returns attributes with filter=theta,
// merge=theta, and diff=theta applied to the pattern covering path —
// extending an existing matching pattern's attribute list if one
// exists, or appending a new line scoped to exactly path otherwise.
func AddThetaToGitAttributes(attributes []string, path string) []string {
	found := false
	out := make([]string, 0, len(attributes)+1)
	for _, line := range attributes {
		m := attributeLineRE.FindStringSubmatch(line)
		if m != nil {
			pattern, attrs := m[1], m[2]
			if matchGlob(pattern, path) {
				found = true
				line = ensureAttr(line, attrs, "filter=theta")
				line = ensureAttr(line, attrs, "merge=theta")
				line = ensureAttr(line, attrs, "diff=theta")
			}
		}
		out = append(out, line)
	}
	if !found {
		out = append(out, fmt.Sprintf("%s filter=theta merge=theta diff=theta", path))
	}
	return out
}

func ensureAttr(line, attrs, attr string) string {
	if strings.Contains(attrs, attr) {
		return line
	}
	return strings.TrimRight(line, " \t") + " " + attr
}

// matchGlob reports whether path matches a gitattributes-style pattern.
// filepath.Match covers the common single-glob case; otherwise only an
// exact pattern == path match counts. "**" gets no special handling.
func matchGlob(pattern, path string) bool {
	ok, err := filepath.Match(pattern, path)
	if err == nil && ok {
		return true
	}
	return pattern == path
}

// TrackedPatterns returns the glob patterns with filter=theta already
// applied.
func TrackedPatterns(attributes []string) []string {
	var patterns []string
	for _, line := range attributes {
		if strings.Contains(line, "filter=theta") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				patterns = append(patterns, fields[0])
			}
		}
	}
	return patterns
}

// Add stages a path via `git add`.
func Add(ctx context.Context, repo *Repo, path string) error {
	return run(ctx, repo, "add", path)
}

// HeadCommit returns the hex sha of HEAD, or "" if there is no commit
// yet (a fresh repo).
func HeadCommit(ctx context.Context, repo *Repo) (string, error) {
	out, err := runOutput(ctx, repo, "rev-parse", "HEAD")
	if err != nil {
		if strings.Contains(err.Error(), "unknown revision") || strings.Contains(err.Error(), "ambiguous argument") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SetConfig sets a git config key to value, scoped to the repository
// (not --global), used by install to wire the filter/diff/merge driver
// entries into .git/config.
func SetConfig(ctx context.Context, repo *Repo, key, value string) error {
	return run(ctx, repo, "config", key, value)
}

// InstallHooks copies the pre-push and post-commit hook scripts into
// $GIT_DIR/hooks if not already present and identical, mirroring
// set_hooks(). src maps hook name to its script contents.
func InstallHooks(repo *Repo, src map[string][]byte) error {
	gitDir, err := gitDir(repo)
	if err != nil {
		return err
	}
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return err
	}
	for name, contents := range src {
		dst := filepath.Join(hooksDir, name)
		if existing, err := os.ReadFile(dst); err == nil && bytes.Equal(existing, contents) {
			continue
		}
		if err := os.WriteFile(dst, contents, 0o755); err != nil {
			return fmt.Errorf("gitutil: installing hook %s: %w", name, err)
		}
	}
	return nil
}

func gitDir(repo *Repo) (string, error) {
	out, err := runOutput(context.Background(), repo, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repo.Root, dir)
	}
	return dir, nil
}

// GitDir returns the repository's $GIT_DIR, resolving a relative path
// against repo.Root.
func GitDir(repo *Repo) (string, error) { return gitDir(repo) }

func run(ctx context.Context, repo *Repo, args ...string) error {
	_, err := runOutput(ctx, repo, args...)
	return err
}

func runOutput(ctx context.Context, repo *Repo, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if repo != nil {
		cmd.Dir = repo.Root
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gitutil: git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// IsLFSInstalled reports whether `git lfs version` succeeds.
func IsLFSInstalled(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "lfs", "version")
	return cmd.Run() == nil
}
