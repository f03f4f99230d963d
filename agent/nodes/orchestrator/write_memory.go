package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
)

type Committer interface {
	Commit(ctx context.Context, conv *statex.Conversation) error
}

// WriteMemory appends the assistant message and the derived context keys, then persists
// the conversation. A cancelled turn leaves memory untouched.
func WriteMemory(ctx context.Context, in *GraphState, store Committer) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tools := make([]string, 0, len(in.ToolCalls))
	for _, c := range in.ToolCalls {
		tools = append(tools, c.ToolName)
	}
	if _, err := in.Conversation.AddMessage(contractx.RoleAssistant, in.Message, map[string]any{
		"tool_calls": len(in.ToolCalls),
		"confidence": in.Confidence,
		"tools":      tools,
	}); err != nil {
		return nil, err
	}

	conv := in.Conversation
	if in.Entity.ID != "" {
		conv.SetContext(statex.ContextLastEntityType, in.Entity.Type)
		conv.SetContext(statex.ContextLastEntityID, in.Entity.ID)
	}
	if in.Entity.Warehouse != "" {
		conv.SetContext(statex.ContextWarehouse, in.Entity.Warehouse)
	}
	if in.Snapshot != nil {
		insights := make([]string, 0, len(in.Snapshot.Insights))
		for _, insight := range in.Snapshot.Insights {
			insights = append(insights, insight.Text)
		}
		conv.SetContext(statex.ContextLastInsights, insights)
	}
	conv.SetContext(statex.ContextLastTools, tools)

	if err := store.Commit(ctx, conv); err != nil {
		return nil, err
	}
	in.Stage = StageMemoryUpdated
	return in, nil
}
