package orchestratornode

import (
	"context"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	extractx "github.com/tanpawarit/factory-copilot/agent/extract"
	snapshotx "github.com/tanpawarit/factory-copilot/agent/snapshot"
)

type ContextBuilder interface {
	Build(ctx context.Context, req snapshotx.Request) (*contractx.ContextSnapshot, error)
}

// Intake records the user message and resolves which entity the turn is about.
func Intake(in *GraphState) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	in.PriorContext = in.Conversation.AllContext()

	var metadata map[string]any
	if len(in.Hints) > 0 {
		metadata = map[string]any{"context_hints": maps.Clone(map[string]any(in.Hints))}
	}
	if _, err := in.Conversation.AddMessage(contractx.RoleUser, in.Text, metadata); err != nil {
		return nil, err
	}

	in.Entity = extractx.ResolveEntity(in.Text, in.Hints, in.PriorContext)
	return in, nil
}

// BuildContext gathers the context snapshot. Only cancellation of ctx stops the turn.
func BuildContext(ctx context.Context, in *GraphState, builder ContextBuilder) (*GraphState, error) {
	snap, err := builder.Build(ctx, snapshotx.Request{
		EntityType: in.Entity.Type,
		EntityID:   in.Entity.ID,
		Warehouse:  in.Entity.Warehouse,
	})
	if err != nil {
		return nil, err
	}
	if len(snap.Missing) > 0 {
		log.Debug().
			Str("session_id", in.SessionID).
			Strs("missing", snap.Missing).
			Msg("context built with omitted sections")
	}

	in.Snapshot = snap
	in.Stage = StageContextBuilt
	return in, nil
}

// SelectTools asks the strategy for tools and enforces the registry and the cap itself.
// A failing strategy degrades to no tools.
func SelectTools(
	ctx context.Context,
	in *GraphState,
	strategy contractx.SelectionStrategy,
	tools []contractx.Descriptor,
) (*GraphState, error) {
	names, err := strategy.Select(ctx, contractx.SelectionRequest{
		Query:    in.Text,
		Hints:    in.Hints,
		Snapshot: in.Snapshot,
		Tools:    tools,
		MaxTools: in.MaxTools,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("tool selection failed")
		names = nil
	}

	known := make(map[string]struct{}, len(tools))
	for _, d := range tools {
		known[d.Name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(names))
	selected := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := known[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
		if len(selected) == in.MaxTools {
			break
		}
	}

	in.Selected = selected
	in.Stage = StageToolsSelected
	return in, nil
}
