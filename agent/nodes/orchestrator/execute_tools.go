package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
)

type ToolResolver interface {
	Resolve(name string) (toolx.Tool, error)
}

// ExecuteTools runs the selected tools concurrently. Every failure, timeout or panic is
// recorded on its ToolCall; results keep the selection order.
func ExecuteTools(
	ctx context.Context,
	in *GraphState,
	resolver ToolResolver,
	extractor contractx.ArgumentExtractor,
	timeout time.Duration,
	nowFn func() time.Time,
) (*GraphState, error) {
	in.ToolCalls = iter.Map(in.Selected, func(name *string) contractx.ToolCall {
		return runTool(ctx, in, *name, resolver, extractor, timeout, nowFn)
	})

	// A cancelled turn is abandoned here; nothing after this point may touch memory.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.Stage = StageToolsExecuted
	return in, nil
}

func runTool(
	ctx context.Context,
	in *GraphState,
	name string,
	resolver ToolResolver,
	extractor contractx.ArgumentExtractor,
	timeout time.Duration,
	nowFn func() time.Time,
) (call contractx.ToolCall) {
	call = contractx.ToolCall{
		ToolName:  name,
		Arguments: map[string]any{},
		Timestamp: nowFn().UTC(),
	}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			call.Result = nil
			call.Error = fmt.Sprintf("%v: panic: %v", contractx.ErrToolExecution, r)
		}
		call.Duration = time.Since(started)
		ev := log.Debug()
		if call.Error != "" {
			ev = log.Warn().Str("error", call.Error)
		}
		ev.Str("session_id", in.SessionID).
			Str("tool", name).
			Dur("duration", call.Duration).
			Msg("tool executed")
	}()

	t, err := resolver.Resolve(name)
	if err != nil {
		call.Error = err.Error()
		return call
	}

	args := extractor.Extract(contractx.ExtractionRequest{
		Query:        in.Text,
		Hints:        in.Hints,
		Snapshot:     in.Snapshot,
		Conversation: in.PriorContext,
		Tool:         t.Descriptor(),
	})
	if args == nil {
		args = map[string]any{}
	}
	call.Arguments = args

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := t.Execute(callCtx, args)
	if err == nil && callCtx.Err() != nil {
		// A tool that ignores its context and returns late still counts as timed out.
		err = callCtx.Err()
	}
	if err != nil {
		call.Error = fmt.Sprintf("%v: %v", contractx.ErrToolExecution, err)
		return call
	}
	if result == nil {
		result = map[string]any{}
	}
	call.Result = result
	return call
}
