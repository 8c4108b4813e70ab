// Command git-theta-merge implements the git merge driver protocol:
// `git-theta-merge ancestor current other path` three-way merges the
// manifests at ancestor/current/other and overwrites current with the
// result. Exit 0 on success, 1 on user abort or manual-merge handoff.
//
// When GIT_THETA_MANUAL_MERGE is set, it instead smudges all three
// checkpoints to ancestor.ckpt/ours.ckpt/theirs.ckpt beside the working
// tree and exits 1 with instructions, mirroring the original tool's
// escape hatch for conflicts no scripted action can resolve.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/config"
	"github.com/r-three/git-theta-go/pkg/gitutil"
	"github.com/r-three/git-theta-go/pkg/log"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/merge"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/thetaerr"
	"github.com/r-three/git-theta-go/pkg/update"
)

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintln(os.Stderr, "usage: git-theta-merge ancestor current other path")
		os.Exit(2)
	}
	ancestorFile, currentFile, otherFile, path := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	logFile, err := log.InitFile("git-theta.log", log.InfoLevel)
	if err == nil {
		defer logFile.Close()
	}

	cfg := config.FromEnv()
	ctx := context.Background()

	if cfg.ManualMerge {
		if err := manualMerge(ctx, cfg, ancestorFile, currentFile, otherFile, path); err != nil {
			fmt.Fprintf(os.Stderr, "git-theta-merge: %v\n", err)
		}
		os.Exit(1)
	}

	if err := run(ctx, cfg, ancestorFile, currentFile, otherFile, path); err != nil {
		if errors.Is(err, thetaerr.ErrUserAbort) {
			fmt.Fprintln(os.Stderr, "git-theta-merge: merge aborted, working tree left untouched.")
			os.Exit(1)
		}
		log.WithComponent("merge").Err(err).Str("path", path).Msg("merge failed")
		fmt.Fprintf(os.Stderr, "git-theta-merge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, ancestorFile, currentFile, otherFile, path string) error {
	repo, err := gitutil.Discover(".")
	if err != nil {
		return err
	}
	ancestorManifest, err := manifest.ReadFile(ancestorFile)
	if err != nil {
		ancestorManifest = manifest.New()
	}
	currentManifest, err := manifest.ReadFile(currentFile)
	if err != nil {
		return fmt.Errorf("reading current manifest: %w", err)
	}
	otherManifest, err := manifest.ReadFile(otherFile)
	if err != nil {
		return fmt.Errorf("reading other manifest: %w", err)
	}

	gitDir, err := gitutil.GitDir(repo)
	if err != nil {
		return err
	}
	store, err := objstore.NewLocalStore(gitDir + "/theta/objects")
	if err != nil {
		return err
	}
	updateRegistry := update.DefaultRegistry()
	materializer := &smudge.Materializer{
		Store:    store,
		History:  &gitutil.History{Repo: repo, Path: path},
		Registry: updateRegistry,
	}

	actions := merge.NewRegistry()
	actions.Register(merge.TakeOurs{})
	actions.Register(merge.TakeTheirs{})
	actions.Register(merge.TakeAncestor{})
	actions.Register(merge.Average{})
	actions.Register(merge.Context{Print: func(s string) { fmt.Println(s) }})

	engine := &merge.Engine{
		Actions:        actions,
		Prompter:       merge.SurveyPrompter{},
		Store:          store,
		UpdateRegistry: updateRegistry,
		Materializer:   materializer,
	}

	merged, err := engine.Run(ctx, ancestorManifest, currentManifest, otherManifest, path)
	if err != nil {
		return err
	}
	return merged.WriteFile(currentFile)
}

func manualMerge(ctx context.Context, cfg config.Config, ancestorFile, currentFile, otherFile, path string) error {
	repo, err := gitutil.Discover(".")
	if err != nil {
		return err
	}
	gitDir, err := gitutil.GitDir(repo)
	if err != nil {
		return err
	}
	store, err := objstore.NewLocalStore(gitDir + "/theta/objects")
	if err != nil {
		return err
	}
	updateRegistry := update.DefaultRegistry()
	checkpointRegistry := checkpoint.DefaultRegistry()
	adapter, err := checkpointRegistry.Get(cfg.CheckpointType)
	if err != nil {
		return err
	}
	materializer := &smudge.Materializer{
		Store:    store,
		History:  &gitutil.History{Repo: repo, Path: path},
		Registry: updateRegistry,
	}
	pipeline := &smudge.Pipeline{Materializer: materializer, Adapter: adapter, MaxConcurrency: cfg.Concurrency()}

	files := map[string]string{
		"ancestor.ckpt": ancestorFile,
		"ours.ckpt":     currentFile,
		"theirs.ckpt":   otherFile,
	}
	for out, manifestFile := range files {
		manifestBytes, err := os.ReadFile(manifestFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", manifestFile, err)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		err = pipeline.Run(ctx, manifestBytes, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("smudging %s: %w", out, err)
		}
		fmt.Printf("Wrote %s\n", out)
	}
	fmt.Printf("Manual merge required for %s. Combine ancestor.ckpt/ours.ckpt/theirs.ckpt\n"+
		"as you see fit, save the result to %s, then continue the merge.\n", path, currentFile)
	return nil
}
