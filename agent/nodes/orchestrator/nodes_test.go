package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func calls(successes, failures int) []contractx.ToolCall {
	out := make([]contractx.ToolCall, 0, successes+failures)
	for i := 0; i < successes; i++ {
		out = append(out, contractx.ToolCall{ToolName: "ok", Result: map[string]any{}})
	}
	for i := 0; i < failures; i++ {
		out = append(out, contractx.ToolCall{ToolName: "bad", Error: "boom"})
	}
	return out
}

func TestConfidenceMonotonic(t *testing.T) {
	t.Parallel()

	for _, penalize := range []bool{false, true} {
		cfg := DefaultScoringConfig()
		cfg.PenalizeMissingContext = penalize
		for _, snap := range []*contractx.ContextSnapshot{nil, {}, {Missing: []string{"orders", "production"}}} {
			for failures := 0; failures <= 5; failures++ {
				prev := -1.0
				for successes := 0; successes <= 10; successes++ {
					got := Confidence(calls(successes, failures), snap, cfg)
					require.GreaterOrEqual(t, got, 0.0)
					require.LessOrEqual(t, got, 1.0)
					require.GreaterOrEqual(t, got, prev, "more successes lowered confidence (penalize=%v)", penalize)
					prev = got
				}
			}
			for successes := 0; successes <= 5; successes++ {
				prev := 2.0
				for failures := 0; failures <= 10; failures++ {
					got := Confidence(calls(successes, failures), snap, cfg)
					require.LessOrEqual(t, got, prev, "more failures raised confidence (penalize=%v)", penalize)
					prev = got
				}
			}
		}
	}
}

func TestConfidenceMissingContext(t *testing.T) {
	t.Parallel()

	partial := &contractx.ContextSnapshot{Missing: []string{contractx.SectionOrders}}
	complete := &contractx.ContextSnapshot{}

	off := DefaultScoringConfig()
	assert.Equal(t, Confidence(calls(1, 0), complete, off), Confidence(calls(1, 0), partial, off),
		"missing context must not matter when the penalty is disabled")

	on := DefaultScoringConfig()
	on.PenalizeMissingContext = true
	assert.Less(t, Confidence(calls(1, 0), partial, on), Confidence(calls(1, 0), complete, on))
	assert.InDelta(t, 0.55, Confidence(calls(1, 0), partial, on), 1e-9)
}

func TestConfidenceValues(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	assert.InDelta(t, 0.5, Confidence(nil, nil, cfg), 1e-9)
	assert.InDelta(t, 0.6, Confidence(calls(1, 0), nil, cfg), 1e-9)
	assert.InDelta(t, 0.35, Confidence(calls(0, 1), nil, cfg), 1e-9)
	assert.Equal(t, 1.0, Confidence(calls(20, 0), nil, cfg))
	assert.Equal(t, 0.0, Confidence(calls(0, 20), nil, cfg))
}

func TestScoringConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultScoringConfig().Validate())
	bad := DefaultScoringConfig()
	bad.FailurePenalty = -0.1
	require.ErrorIs(t, bad.Validate(), contractx.ErrValidation)
	bad = DefaultScoringConfig()
	bad.Base = 1.5
	require.ErrorIs(t, bad.Validate(), contractx.ErrValidation)
}

func TestComposeMessage(t *testing.T) {
	t.Parallel()

	msg := composeMessage([]contractx.ToolCall{
		{ToolName: toolx.ToolQueryInventory, Result: map[string]any{toolx.ResultSummary: "ABC123 has 250 units available in WH_SOUTH"}},
		{ToolName: toolx.ToolLookupOrders, Error: "tool execution failed: timeout"},
		{ToolName: toolx.ToolCheckProduction, Result: map[string]any{"a": 1, "b": 2}},
	}, &contractx.ContextSnapshot{Insights: []contractx.Insight{{Text: "High order volume: 7 open orders"}}})

	want := "Based on the available data:" +
		"\n• Query Inventory: ABC123 has 250 units available in WH_SOUTH" +
		"\n• Check Production: Retrieved 2 fields" +
		"\n\nKey insights:" +
		"\n• High order volume: 7 open orders" +
		"\n\nNote: Some tools encountered issues:" +
		"\n• Could not retrieve Lookup Orders data (tool execution failed: timeout)"
	assert.Equal(t, want, msg)
}

func TestComposeMessageEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, emptyAnswer, composeMessage(nil, nil))
	onlyFailure := composeMessage(calls(0, 1), nil)
	assert.True(t, strings.HasPrefix(onlyFailure, "Note: Some tools encountered issues:"), onlyFailure)
}

type stubTool struct {
	name string
	run  func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (s stubTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{Name: s.name, InputSchema: map[string]contractx.Field{"sku_code": {Type: contractx.TypeString}}}
}

func (s stubTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return s.run(ctx, args)
}

type stubExtractor struct{}

func (stubExtractor) Extract(req contractx.ExtractionRequest) map[string]any {
	return map[string]any{"sku_code": "ABC123"}
}

func registryWith(t *testing.T, tools ...toolx.Tool) *toolx.Registry {
	t.Helper()
	reg := toolx.NewRegistry()
	reg.MustRegister(tools...)
	reg.Freeze()
	return reg
}

func TestExecuteToolsIsolatesFailures(t *testing.T) {
	t.Parallel()

	reg := registryWith(t,
		stubTool{name: "ok", run: func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"v": 1}, nil
		}},
		stubTool{name: "fails", run: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("db down")
		}},
		stubTool{name: "panics", run: func(context.Context, map[string]any) (map[string]any, error) {
			panic("nil map")
		}},
		stubTool{name: "slow", run: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		stubTool{name: "empty", run: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, nil
		}},
	)

	in := &GraphState{SessionID: "s1", Selected: []string{"ok", "fails", "panics", "slow", "empty", "missing"}}
	out, err := ExecuteTools(context.Background(), in, reg, stubExtractor{}, 20*time.Millisecond, time.Now)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 6)

	for i, name := range in.Selected {
		c := out.ToolCalls[i]
		assert.Equal(t, name, c.ToolName)
		assert.True(t, (c.Result == nil) != (c.Error == ""), "%s must have exactly one of result/error", name)
	}
	assert.True(t, out.ToolCalls[0].Succeeded())
	assert.Equal(t, map[string]any{"sku_code": "ABC123"}, out.ToolCalls[0].Arguments)
	assert.Contains(t, out.ToolCalls[1].Error, "db down")
	assert.Contains(t, out.ToolCalls[2].Error, "panic")
	assert.Contains(t, out.ToolCalls[3].Error, context.DeadlineExceeded.Error())
	assert.True(t, out.ToolCalls[4].Succeeded())
	assert.Contains(t, out.ToolCalls[5].Error, "not found")
	assert.Equal(t, StageToolsExecuted, out.Stage)
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) DispatchAlert(context.Context, contractx.AlertPayload) (contractx.AlertReceipt, error) {
	return contractx.AlertReceipt{Accepted: false}, nil
}

type alertArgs struct{}

func (alertArgs) Extract(contractx.ExtractionRequest) map[string]any {
	return map[string]any{"action": "create", "alert_type": "low_stock"}
}

func TestExecuteToolsWrapsToolErrorOnce(t *testing.T) {
	t.Parallel()

	reg := registryWith(t, toolx.NewAlertTool(rejectingDispatcher{}))
	in := &GraphState{SessionID: "s1", Selected: []string{toolx.ToolManageAlerts}}
	out, err := ExecuteTools(context.Background(), in, reg, alertArgs{}, time.Second, time.Now)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)

	msg := out.ToolCalls[0].Error
	assert.Contains(t, msg, "alert low_stock was rejected")
	assert.Equal(t, 1, strings.Count(msg, contractx.ErrToolExecution.Error()), msg)
}

func TestExecuteToolsCancelled(t *testing.T) {
	t.Parallel()

	reg := registryWith(t, stubTool{name: "slow", run: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := ExecuteTools(ctx, &GraphState{Selected: []string{"slow"}}, reg, stubExtractor{}, time.Minute, time.Now)
	require.ErrorIs(t, err, context.Canceled)
}

type selectAll struct {
	names []string
	err   error
}

func (s selectAll) Select(context.Context, contractx.SelectionRequest) ([]string, error) {
	return s.names, s.err
}

func TestSelectToolsEnforcesCapAndRegistry(t *testing.T) {
	t.Parallel()

	tools := []contractx.Descriptor{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	in := &GraphState{MaxTools: 2}
	out, err := SelectTools(context.Background(), in, selectAll{names: []string{"x", "b", "b", "a", "c"}}, tools)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, out.Selected)
	assert.Equal(t, StageToolsSelected, out.Stage)
}

func TestSelectToolsDegradesOnStrategyError(t *testing.T) {
	t.Parallel()

	out, err := SelectTools(context.Background(), &GraphState{MaxTools: 3}, selectAll{err: errors.New("model offline")}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Selected)
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	q, err := NormalizeQuery(contractx.Query{Text: "  stock?  ", SessionID: " s1 "}, 3)
	require.NoError(t, err)
	assert.Equal(t, "stock?", q.Text)
	assert.Equal(t, "s1", q.SessionID)
	assert.Equal(t, 3, q.MaxTools)

	_, err = NormalizeQuery(contractx.Query{Text: "  "}, 3)
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = NormalizeQuery(contractx.Query{Text: "x", MaxTools: -1}, 3)
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Query Inventory", displayName("query_inventory"))
	assert.Equal(t, "Forecast", displayName("forecast"))
}
