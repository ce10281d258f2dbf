package bpm

import (
	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

// resolveExclusive evaluates the outgoing guarded transitions of a node in
// declaration order and takes the first whose guard holds.  An unguarded,
// non-default transition always holds.  If no guard matched, the declared
// default transition is taken; without one the resolution is a fatal
// definition error for the branch.
func resolveExclusive(ctx model.NodeContext) ([]*model.NodeEntry, error) {

	outgoing := ctx.Node().Outgoing()
	if len(outgoing) == 0 {
		return nil, nil
	}

	var defTransition *definition.Transition

	for _, transition := range outgoing {
		if transition.IsDefault() {
			defTransition = transition
			continue
		}

		follow := true
		if transition.Guard() != nil {
			var err error
			follow, err = ctx.EvalGuard(transition)
			if err != nil {
				return nil, err
			}
		}

		if follow {
			return []*model.NodeEntry{{Node: transition.ToNode()}}, nil
		}
	}

	if defTransition != nil {
		return []*model.NodeEntry{{Node: defTransition.ToNode()}}, nil
	}

	return nil, service.NewDefinitionResolutionError(ctx.Node().ID(), "no guard matched and no default transition declared")
}

// resolveInclusive takes every outgoing transition whose guard holds,
// falling back to the default transition when none do
func resolveInclusive(ctx model.NodeContext) ([]*model.NodeEntry, error) {

	outgoing := ctx.Node().Outgoing()
	if len(outgoing) == 0 {
		return nil, nil
	}

	var entries []*model.NodeEntry
	var defTransition *definition.Transition

	for _, transition := range outgoing {
		if transition.IsDefault() {
			defTransition = transition
			continue
		}

		follow := true
		if transition.Guard() != nil {
			var err error
			follow, err = ctx.EvalGuard(transition)
			if err != nil {
				return nil, err
			}
		}

		if follow {
			entries = append(entries, &model.NodeEntry{Node: transition.ToNode()})
		}
	}

	if len(entries) == 0 {
		if defTransition == nil {
			return nil, service.NewDefinitionResolutionError(ctx.Node().ID(), "no guard matched and no default transition declared")
		}
		entries = append(entries, &model.NodeEntry{Node: defTransition.ToNode()})
	}

	return entries, nil
}

// resolveAll fires every outgoing transition unconditionally
func resolveAll(ctx model.NodeContext) []*model.NodeEntry {

	outgoing := ctx.Node().Outgoing()
	if len(outgoing) == 0 {
		return nil
	}

	entries := make([]*model.NodeEntry, 0, len(outgoing))
	for _, transition := range outgoing {
		entries = append(entries, &model.NodeEntry{Node: transition.ToNode()})
	}
	return entries
}
