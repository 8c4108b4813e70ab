package merge

import (
	"context"

	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/metrics"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/thetaerr"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
)

var reservedShortCuts = map[string]bool{"q": true}

// Engine drives one checkpoint's three-way merge: it infers each
// parameter's diff state, auto-resolves the uncontested ones, and routes
// the rest through the action Registry and Prompter.
type Engine struct {
	Actions        *Registry
	Prompter       Prompter
	Store          objstore.Store
	UpdateRegistry *update.Registry
	Materializer   *smudge.Materializer
}

// Run merges ancestor/current/other into a single manifest. path is the
// working-tree path being merged, shown in prompts. Returning
// thetaerr.ErrUserAbort means the user chose "q": callers must leave the
// working tree untouched.
func (e *Engine) Run(ctx context.Context, ancestor, current, other manifest.Manifest, path string) (manifest.Manifest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MergeDuration)

	fetchers := Fetchers{
		Current:  NewFetcher(e.Materializer, current),
		Other:    NewFetcher(e.Materializer, other),
		Ancestor: NewFetcher(e.Materializer, ancestor),
	}

	if ctxAction, ok := e.Actions.Get("context"); ok {
		if _, _, err := ctxAction.Run(ctx, Request{Path: path, Fetch: fetchers}); err != nil {
			return nil, err
		}
	}

	shortcuts := AssignShortCuts(e.Actions.All(), reservedShortCuts)

	merged := manifest.New()
	for _, name := range manifest.UnionNames(ancestor, current, other) {
		ancestorParam, _ := ancestor.Get(name)
		currentParam, _ := current.Get(name)
		otherParam, _ := other.Get(name)

		state := InferState(ancestorParam, currentParam, otherParam)
		metrics.MergeActionsTotal.WithLabelValues("infer", string(state)).Inc()

		if state == types.StateEqual {
			merged.Set(name, ancestorParam)
			continue
		}
		if state == types.StateDeletedBoth {
			continue
		}

		resolved, err := e.resolve(ctx, name, state, ancestorParam, currentParam, otherParam, fetchers, path, shortcuts)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			continue
		}
		merged.Set(name, resolved)
	}
	return merged, nil
}

func (e *Engine) resolve(ctx context.Context, name types.ParamName, state types.DiffState, ancestorParam, currentParam, otherParam *manifest.ParamMetadata, fetchers Fetchers, path string, shortcuts map[string]Action) (*manifest.ParamMetadata, error) {
	available := availableItems(shortcuts, state)

	for {
		choice, err := e.Prompter.Prompt(ctx, name.String(), state, available)
		if err != nil {
			return nil, err
		}
		if choice == "q" {
			metrics.MergeActionsTotal.WithLabelValues("quit", string(state)).Inc()
			return nil, thetaerr.ErrUserAbort
		}

		action, ok := shortcuts[choice]
		if !ok {
			continue
		}

		args := map[string]string{}
		for _, spec := range action.Arguments() {
			val, err := e.Prompter.PromptArgument(ctx, spec)
			if err != nil {
				return nil, err
			}
			if spec.Validate != nil {
				if err := spec.Validate(val); err != nil {
					return nil, err
				}
			}
			args[spec.Name] = val
		}

		req := Request{
			Name:     name,
			State:    state,
			Ancestor: ancestorParam,
			Current:  currentParam,
			Other:    otherParam,
			Fetch:    fetchers,
			Store:    e.Store,
			Registry: e.UpdateRegistry,
			Path:     path,
			Args:     args,
		}
		result, isResolved, err := action.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if isResolved {
			metrics.MergeActionsTotal.WithLabelValues(action.Name(), string(state)).Inc()
			return result, nil
		}
		// Actions like Context only produce a side effect; loop back
		// and prompt for a resolving action.
	}
}

func availableItems(shortcuts map[string]Action, state types.DiffState) []MenuItem {
	items := make([]MenuItem, 0, len(shortcuts))
	for sc, a := range shortcuts {
		if inactiveFor(a, state) {
			continue
		}
		items = append(items, MenuItem{ShortCut: sc, Action: a})
	}
	return items
}

func inactiveFor(a Action, state types.DiffState) bool {
	for _, s := range a.InactiveStates() {
		if s == state {
			return true
		}
	}
	return false
}
