package merge

import (
	"context"
	"fmt"
	"sort"

	"github.com/AlecAivazis/survey/v2"

	"github.com/r-three/git-theta-go/pkg/types"
)

// MenuItem is one selectable entry in a merge prompt: the key the user
// types and the action it triggers.
type MenuItem struct {
	ShortCut string
	Action   Action
}

// Prompter abstracts how a merge action and its arguments are collected
// from the user, so the resolution loop in Engine is testable without a
// terminal.
type Prompter interface {
	// Prompt shows the available actions for one parameter's conflict
	// and returns the chosen short cut, or "q" to abort. param is the
	// "/"-joined parameter name.
	Prompt(ctx context.Context, param string, state types.DiffState, items []MenuItem) (string, error)
	// PromptArgument collects one action argument, re-prompting on
	// spec.Validate failure.
	PromptArgument(ctx context.Context, spec ArgSpec) (string, error)
}

// SurveyPrompter is the interactive terminal implementation, built on
// the one library in the retrieval pack purpose-built for "menu plus
// validated free-text with history" terminal prompts.
type SurveyPrompter struct{}

func (SurveyPrompter) Prompt(ctx context.Context, param string, state types.DiffState, items []MenuItem) (string, error) {
	sort.Slice(items, func(i, j int) bool { return items[i].ShortCut < items[j].ShortCut })

	options := make([]string, 0, len(items)+1)
	labels := map[string]string{}
	for _, item := range items {
		label := fmt.Sprintf("%s)  %s", item.ShortCut, item.Action.Name())
		labels[label] = item.ShortCut
		options = append(options, label)
	}
	quit := "q)  quit"
	labels[quit] = "q"
	options = append(options, quit)

	prompt := &survey.Select{
		Message: fmt.Sprintf("%s: %s", param, state.Description()),
		Options: options,
	}
	var chosen string
	if err := survey.AskOne(prompt, &chosen); err != nil {
		return "", fmt.Errorf("merge: reading action: %w", err)
	}
	return labels[chosen], nil
}

func (SurveyPrompter) PromptArgument(ctx context.Context, spec ArgSpec) (string, error) {
	prompt := &survey.Input{Message: fmt.Sprintf("%s: %s", spec.Name, spec.Description)}
	opts := []survey.AskOpt{}
	if spec.Validate != nil {
		opts = append(opts, survey.WithValidator(func(val interface{}) error {
			s, _ := val.(string)
			return spec.Validate(s)
		}))
	}
	var value string
	if err := survey.AskOne(prompt, &value, opts...); err != nil {
		return "", fmt.Errorf("merge: reading argument %s: %w", spec.Name, err)
	}
	return value, nil
}

// ScriptedPrompter replays a fixed queue of answers, for tests and for
// any future non-interactive driver. Each Prompt call consumes the next
// Actions entry; each PromptArgument call consumes the next Args entry.
// Running out of either is a test bug, reported as an error rather than
// a panic.
type ScriptedPrompter struct {
	Actions []string
	Args    []string

	actionIdx int
	argIdx    int
}

func (s *ScriptedPrompter) Prompt(ctx context.Context, param string, state types.DiffState, items []MenuItem) (string, error) {
	if s.actionIdx >= len(s.Actions) {
		return "", fmt.Errorf("merge: scripted prompter exhausted at parameter %s", param)
	}
	a := s.Actions[s.actionIdx]
	s.actionIdx++
	return a, nil
}

func (s *ScriptedPrompter) PromptArgument(ctx context.Context, spec ArgSpec) (string, error) {
	if s.argIdx >= len(s.Args) {
		return "", fmt.Errorf("merge: scripted prompter exhausted arguments at %s", spec.Name)
	}
	v := s.Args[s.argIdx]
	s.argIdx++
	return v, nil
}
