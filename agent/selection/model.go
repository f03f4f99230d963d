package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	promptx "github.com/tanpawarit/factory-copilot/agent/prompt"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
)

var ErrNoModelSelection = errors.New("model selected no tools")

// ModelStrategy asks a tool-calling chat model which tools to run. Any model failure, or
// an answer with no usable tool, falls back to the wrapped strategy.
type ModelStrategy struct {
	model    einomodel.ToolCallingChatModel
	fallback contractx.SelectionStrategy
	prompts  promptx.PromptSet
}

var _ contractx.SelectionStrategy = (*ModelStrategy)(nil)

func NewModelStrategy(model einomodel.ToolCallingChatModel, fallback contractx.SelectionStrategy) (*ModelStrategy, error) {
	if model == nil {
		return nil, errors.New("selection model is required")
	}
	if fallback == nil {
		return nil, errors.New("fallback strategy is required")
	}
	return &ModelStrategy{
		model:    model,
		fallback: fallback,
		prompts:  promptx.LoadPromptSet(),
	}, nil
}

func (s *ModelStrategy) Select(ctx context.Context, req contractx.SelectionRequest) ([]string, error) {
	names, err := s.selectWithModel(ctx, req)
	if err == nil {
		return names, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	log.Warn().Err(err).Msg("model tool selection failed, using fallback strategy")
	return s.fallback.Select(ctx, req)
}

func (s *ModelStrategy) selectWithModel(ctx context.Context, req contractx.SelectionRequest) ([]string, error) {
	if len(req.Tools) == 0 {
		return nil, ErrNoModelSelection
	}
	bound, err := s.model.WithTools(toolx.ToolInfos(req.Tools))
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	maxTools := req.MaxTools
	if maxTools <= 0 {
		maxTools = DefaultMaxTools
	}
	msg, err := bound.Generate(ctx, []*schema.Message{
		schema.SystemMessage(s.prompts.RenderSelector(maxTools, contextLines(req))),
		schema.UserMessage(req.Query),
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if msg == nil {
		return nil, ErrNoModelSelection
	}

	known := make(map[string]struct{}, len(req.Tools))
	for _, d := range req.Tools {
		known[d.Name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(msg.ToolCalls))
	names := make([]string, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if _, ok := known[name]; !ok {
			log.Debug().Str("tool", name).Msg("model proposed unknown tool")
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrNoModelSelection
	}
	return capTools(names, maxTools), nil
}

func contextLines(req contractx.SelectionRequest) []string {
	var lines []string
	if t, id := req.Hints.EntityType(), req.Hints.EntityID(); t != "" || id != "" {
		lines = append(lines, fmt.Sprintf("entity: %s %s", t, id))
	}
	if req.Snapshot != nil {
		if req.Snapshot.EntityID != "" && req.Hints.EntityID() == "" {
			lines = append(lines, fmt.Sprintf("entity: %s %s", req.Snapshot.EntityType, req.Snapshot.EntityID))
		}
		for _, in := range req.Snapshot.Insights {
			lines = append(lines, "insight: "+in.Text)
		}
	}
	return lines
}
