// Command git-theta-diff implements the git diff driver protocol: given
// the two (already clean-filtered, i.e. manifest-form) blob temp files
// for a change, print which parameters were added, removed, or
// modified. Presentation only — it always exits 0.
package main

import (
	"fmt"
	"os"

	"github.com/r-three/git-theta-go/pkg/manifest"
)

const (
	colorAdded    = "\033[32m"
	colorRemoved  = "\033[31m"
	colorModified = "\033[33m"
	colorReset    = "\033[0m"
)

func main() {
	// path old_file old_hex old_mode new_file new_hex new_mode
	if len(os.Args) != 8 {
		fmt.Fprintln(os.Stderr, "usage: git-theta-diff path old_file old_hex old_mode new_file new_hex new_mode")
		os.Exit(2)
	}
	path := os.Args[1]
	oldFile := os.Args[2]
	newFile := os.Args[5]

	oldManifest, err := readManifest(oldFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-theta-diff: %v\n", err)
		os.Exit(0)
	}
	newManifest, err := readManifest(newFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-theta-diff: %v\n", err)
		os.Exit(0)
	}

	fmt.Printf("git-theta diff for %s\n", path)
	added, removed, modified := manifest.Diff(newManifest, oldManifest)
	printSection("ADDED", colorAdded, added)
	printSection("REMOVED", colorRemoved, removed)
	printSection("MODIFIED", colorModified, modified)
	os.Exit(0)
}

// readManifest tolerates a missing/empty file (a brand new or deleted
// tracked path), returning an empty manifest rather than erroring.
func readManifest(path string) (manifest.Manifest, error) {
	if path == "/dev/null" {
		return manifest.New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest.New(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return manifest.New(), nil
	}
	return manifest.Parse(data)
}

func printSection(title, color string, m manifest.Manifest) {
	names := manifest.Summary(m)
	if len(names) == 0 {
		return
	}
	fmt.Printf("%s%s:%s\n", color, title, colorReset)
	for _, name := range names {
		fmt.Printf("  %s%s%s\n", color, name, colorReset)
	}
}
