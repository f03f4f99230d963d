package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

func Finalize(in *GraphState) (contractx.Response, error) {
	if in == nil {
		return contractx.Response{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Stage != StageMemoryUpdated {
		return contractx.Response{}, fmt.Errorf("%w: turn finished at stage %s", contractx.ErrServiceFault, in.Stage)
	}
	in.Stage = StageDone

	calls := in.ToolCalls
	if calls == nil {
		calls = []contractx.ToolCall{}
	}
	return contractx.Response{
		SessionID:   in.SessionID,
		Message:     in.Message,
		ToolCalls:   calls,
		ContextUsed: in.Snapshot.AsMap(),
		Confidence:  in.Confidence,
		Timestamp:   in.Now,
	}, nil
}
