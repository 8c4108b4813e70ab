// Command git-theta-filter implements the git clean/smudge filter
// protocol: `git-theta-filter clean <path>` reads raw checkpoint bytes
// on stdin and writes a canonical manifest to stdout; `git-theta-filter
// smudge <path>` does the reverse. Modeled on the teacher's
// cmd/warren-migrate: a small flag-parsed utility binary rather than a
// full cobra command tree, since git invokes it with a fixed argument
// shape it never varies.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/clean"
	"github.com/r-three/git-theta-go/pkg/config"
	"github.com/r-three/git-theta-go/pkg/gitutil"
	"github.com/r-three/git-theta-go/pkg/log"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/update"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: git-theta-filter <clean|smudge> <path>")
	}
	flag.Parse()
	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(2)
	}
	op, path := args[0], args[1]

	logFile, err := log.InitFile("git-theta.log", log.InfoLevel)
	if err == nil {
		defer logFile.Close()
	}

	ctx := context.Background()
	if err := run(ctx, op, path); err != nil {
		log.WithComponent("filter").Err(err).Str("op", op).Str("path", path).Msg("filter failed")
		fmt.Fprintf(os.Stderr, "git-theta-filter: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, op, path string) error {
	repo, err := gitutil.Discover(".")
	if err != nil {
		return err
	}
	cfg := config.FromEnv()

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
	history := &gitutil.History{Repo: repo, Path: path}
	materializer := &smudge.Materializer{Store: store, History: history, Registry: updateRegistry}

	switch op {
	case "clean":
		return runClean(ctx, repo, cfg, store, updateRegistry, adapter, materializer)
	case "smudge":
		return runSmudge(ctx, cfg, adapter, materializer)
	default:
		return fmt.Errorf("unknown filter operation %q", op)
	}
}

func runClean(ctx context.Context, repo *gitutil.Repo, cfg config.Config, store objstore.Store, updateRegistry *update.Registry, adapter checkpoint.Adapter, materializer *smudge.Materializer) error {
	previousCommit, err := gitutil.HeadCommit(ctx, repo)
	if err != nil {
		return err
	}
	previous := manifest.New()
	if previousCommit != "" {
		if m, err := materializer.History.ManifestAt(ctx, previousCommit); err == nil {
			previous = m
		}
		// No manifest at HEAD for this path (newly tracked file): treat
		// as a first commit, everything dense.
	}

	pipeline := &clean.Pipeline{
		Store:        store,
		Registry:     updateRegistry,
		Materializer: materializer,
		Config:       cfg,
	}
	out, err := pipeline.Run(ctx, os.Stdin, adapter, previous, previousCommit)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runSmudge(ctx context.Context, cfg config.Config, adapter checkpoint.Adapter, materializer *smudge.Materializer) error {
	pipeline := &smudge.Pipeline{
		Materializer:   materializer,
		Adapter:        adapter,
		MaxConcurrency: cfg.Concurrency(),
	}
	manifestBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	return pipeline.Run(ctx, manifestBytes, os.Stdout)
}
