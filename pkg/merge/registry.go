package merge

import (
	"sort"
	"strconv"
)

// Registry resolves merge actions by name, populated at startup the same
// way pkg/update and pkg/checkpoint populate theirs.
type Registry struct {
	actions map[string]Action
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{actions: map[string]Action{}} }

// DefaultRegistry returns a Registry with the five built-in actions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TakeOurs{})
	r.Register(TakeTheirs{})
	r.Register(TakeAncestor{})
	r.Register(Average{})
	r.Register(Context{})
	return r
}

// Register adds or replaces an action under its Name().
func (r *Registry) Register(a Action) { r.actions[a.Name()] = a }

// Get looks up an action by name.
func (r *Registry) Get(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// All returns every registered action, sorted by Name() for determinism
// — matching the original tool's `sorted(handlers.items())` iteration
// order before assigning short cuts.
func (r *Registry) All() []Action {
	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AssignShortCuts gives each action a selection key: its requested
// ShortCut() if that string is available and not reserved, else the next
// integer in an incrementing series rendered as a string. Ported from
// the original tool's make_short_cuts; actions must already be in a
// deterministic order (Registry.All sorts by Name()) so the fallback
// numbering is reproducible.
func AssignShortCuts(actions []Action, reserved map[string]bool) map[string]Action {
	out := map[string]Action{}
	next := 1
	for _, a := range actions {
		sc := a.ShortCut()
		if !reserved[sc] {
			if _, taken := out[sc]; !taken {
				out[sc] = a
				continue
			}
		}
		out[strconv.Itoa(next)] = a
		next++
	}
	return out
}
