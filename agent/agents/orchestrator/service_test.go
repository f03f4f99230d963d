package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	nodex "github.com/tanpawarit/factory-copilot/agent/nodes/orchestrator"
	selectionx "github.com/tanpawarit/factory-copilot/agent/selection"
	snapshotx "github.com/tanpawarit/factory-copilot/agent/snapshot"
	"github.com/tanpawarit/factory-copilot/agent/source/fixture"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const inventoryQuery = "What's the current inventory for SKU ABC123?"

type blockingInventory struct{}

func (blockingInventory) FetchInventory(ctx context.Context, _ contractx.InventoryFilter) ([]contractx.InventoryItem, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingOrders struct{}

func (failingOrders) FetchOpenOrders(context.Context, contractx.OrderFilter) ([]contractx.Order, error) {
	return nil, errors.New("orders db unavailable")
}

type fakePersister struct {
	saveErr error
}

func (f *fakePersister) Load(context.Context, string) (*statex.ConversationSnapshot, error) {
	return nil, statex.ErrStateNotFound
}

func (f *fakePersister) Save(context.Context, *statex.ConversationSnapshot) error {
	return f.saveErr
}

func (f *fakePersister) Delete(context.Context, string) error {
	return nil
}

type harness struct {
	sources   contractx.Sources
	cfg       Config
	snapCfg   snapshotx.Config
	storeOpts []statex.MemoryStoreOption
}

func newHarness() *harness {
	snapCfg := snapshotx.DefaultConfig()
	snapCfg.FetchTimeout = 200 * time.Millisecond
	cfg := DefaultConfig()
	cfg.ToolTimeout = 200 * time.Millisecond
	return &harness{
		sources: fixture.New().Sources(),
		cfg:     cfg,
		snapCfg: snapCfg,
	}
}

func (h *harness) build(t *testing.T) (*Orchestrator, *statex.MemoryStore) {
	t.Helper()
	rules, err := selectionx.DefaultRules()
	require.NoError(t, err)

	store := statex.NewMemoryStore(h.storeOpts...)
	o, err := New(
		store,
		toolx.NewDefaultRegistry(h.sources),
		snapshotx.NewBuilder(h.sources, h.snapCfg),
		selectionx.NewKeywordStrategy(rules),
		h.cfg,
	)
	require.NoError(t, err)
	return o, store
}

func TestScenarioInventoryQuery(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	resp, err := o.ProcessQuery(context.Background(), contractx.Query{
		Text:      inventoryQuery,
		SessionID: "scenario-a",
		MaxTools:  3,
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	call := resp.ToolCalls[0]
	assert.Equal(t, toolx.ToolQueryInventory, call.ToolName)
	assert.True(t, call.Succeeded(), call.Error)
	assert.Equal(t, "ABC123", call.Arguments["sku_code"])
	assert.Equal(t, 250.0, call.Result["qty_available"])
	assert.Contains(t, resp.Message, "250")
	assert.Greater(t, resp.Confidence, nodex.DefaultScoringConfig().Base)
	assert.Equal(t, "scenario-a", resp.SessionID)
	assert.Equal(t, "ABC123", resp.ContextUsed["entity_id"])
}

func TestScenarioInventoryTimeoutDegrades(t *testing.T) {
	t.Parallel()

	healthy, _ := newHarness().build(t)
	baseline, err := healthy.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "b-baseline"})
	require.NoError(t, err)

	h := newHarness()
	h.sources.Inventory = blockingInventory{}
	h.cfg.ToolTimeout = 30 * time.Millisecond
	h.snapCfg.FetchTimeout = 30 * time.Millisecond
	o, _ := h.build(t)

	resp, err := o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "b"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.NotEmpty(t, resp.ToolCalls[0].Error)
	assert.Nil(t, resp.ToolCalls[0].Result)
	assert.Less(t, resp.Confidence, baseline.Confidence)
	assert.Contains(t, resp.Message, "Could not retrieve Query Inventory data")
}

func TestScenarioHistoryAcrossTurns(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	ctx := context.Background()
	first := "How much stock of ABC123 do we have?"
	second := "Any open orders for CUST-ACME?"

	_, err := o.ProcessQuery(ctx, contractx.Query{Text: first, SessionID: "s1"})
	require.NoError(t, err)
	_, err = o.ProcessQuery(ctx, contractx.Query{Text: second, SessionID: "s1"})
	require.NoError(t, err)

	hist, err := o.GetHistory(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 4)

	roles := make([]contractx.Role, 0, 4)
	for _, m := range hist.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []contractx.Role{
		contractx.RoleUser, contractx.RoleAssistant, contractx.RoleUser, contractx.RoleAssistant,
	}, roles)
	assert.Equal(t, first, hist.Messages[0].Content)
	assert.Equal(t, second, hist.Messages[2].Content)
	assert.Equal(t, 2, hist.Summary.UserMessages)
	assert.Equal(t, 2, hist.Summary.AssistantMessages)

	last, err := o.GetHistory(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, last.Messages, 1)
	assert.Equal(t, contractx.RoleAssistant, last.Messages[0].Role)
}

func TestScenarioDeleteMissingSession(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	removed, err := o.DeleteSession(context.Background(), "missing-id")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "present"})
	require.NoError(t, err)
	removed, err = o.DeleteSession(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = o.GetHistory(context.Background(), "present", 0)
	require.ErrorIs(t, err, contractx.ErrNotFound)
}

func TestProcessQueryCapsTools(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	query := "Check inventory, open orders, production status, demand forecast and raise an alert"

	resp, err := o.ProcessQuery(context.Background(), contractx.Query{Text: query, SessionID: "cap", MaxTools: 2})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, toolx.ToolQueryInventory, resp.ToolCalls[0].ToolName)
	assert.Equal(t, toolx.ToolLookupOrders, resp.ToolCalls[1].ToolName)

	resp, err = o.ProcessQuery(context.Background(), contractx.Query{Text: query, SessionID: "cap-default"})
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, selectionx.DefaultMaxTools)
}

func TestProcessQueryValidation(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	_, err := o.ProcessQuery(context.Background(), contractx.Query{Text: "   ", SessionID: "v"})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = o.ProcessQuery(context.Background(), contractx.Query{Text: "stock?", SessionID: "v", MaxTools: -1})
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestProcessQueryAnonymousSession(t *testing.T) {
	t.Parallel()

	o, store := newHarness().build(t)
	resp, err := o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery})
	require.NoError(t, err)

	_, err = uuid.Parse(resp.SessionID)
	require.NoError(t, err, "anonymous session id %q", resp.SessionID)
	assert.Equal(t, 1, store.Len())
}

func TestProcessQueryCancelledSkipsAssistantMessage(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.sources.Inventory = blockingInventory{}
	h.cfg.ToolTimeout = time.Minute
	h.snapCfg.FetchTimeout = time.Minute
	o, _ := h.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := o.ProcessQuery(ctx, contractx.Query{Text: inventoryQuery, SessionID: "cancelled"})
	require.ErrorIs(t, err, context.Canceled)

	hist, err := o.GetHistory(context.Background(), "cancelled", 0)
	require.NoError(t, err)
	for _, m := range hist.Messages {
		assert.NotEqual(t, contractx.RoleAssistant, m.Role, "cancelled turn appended an assistant message")
	}
}

func TestProcessQuerySerializesSameSession(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	const turns = 10

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "shared"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := o.GetHistory(context.Background(), "shared", 0)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2*turns)
	for i, m := range hist.Messages {
		want := contractx.RoleUser
		if i%2 == 1 {
			want = contractx.RoleAssistant
		}
		require.Equal(t, want, m.Role, "message %d out of turn", i)
	}
}

func TestProcessQueryIndependentSessions(t *testing.T) {
	t.Parallel()

	o, store := newHarness().build(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.ProcessQuery(context.Background(), contractx.Query{
				Text:      inventoryQuery,
				SessionID: "session-" + string(rune('a'+i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, store.Len())
}

func TestProcessQueryStoreFault(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.storeOpts = []statex.MemoryStoreOption{statex.WithPersister(&fakePersister{saveErr: errors.New("redis down")})}
	o, _ := h.build(t)

	_, err := o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "fault"})
	require.ErrorIs(t, err, contractx.ErrServiceFault)
}

func TestConfidenceMissingContextPenalty(t *testing.T) {
	t.Parallel()

	run := func(penalize bool) float64 {
		h := newHarness()
		h.sources.Orders = failingOrders{}
		h.sources.Forecast = nil
		h.cfg.PenalizeMissingContext = penalize
		o, _ := h.build(t)
		resp, err := o.ProcessQuery(context.Background(), contractx.Query{Text: inventoryQuery, SessionID: "penalty"})
		require.NoError(t, err)
		require.Len(t, resp.ToolCalls, 1)
		require.True(t, resp.ToolCalls[0].Succeeded())
		return resp.Confidence
	}

	without := run(false)
	with := run(true)
	assert.InDelta(t, 0.6, without, 1e-9)
	assert.InDelta(t, 0.55, with, 1e-9)
}

func TestFollowUpUsesConversationEntity(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	ctx := context.Background()
	_, err := o.ProcessQuery(ctx, contractx.Query{Text: "Show stock for SKU XYZ789 in WH_NORTH", SessionID: "follow"})
	require.NoError(t, err)

	resp, err := o.ProcessQuery(ctx, contractx.Query{Text: "What does the demand forecast look like?", SessionID: "follow"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	call := resp.ToolCalls[0]
	assert.Equal(t, toolx.ToolGetForecast, call.ToolName)
	assert.Equal(t, "XYZ789", call.Arguments["sku_code"])
	assert.True(t, call.Succeeded(), call.Error)
}

func TestResetSession(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	ctx := context.Background()
	_, err := o.ProcessQuery(ctx, contractx.Query{Text: inventoryQuery, SessionID: "reset"})
	require.NoError(t, err)

	require.NoError(t, o.ResetSession(ctx, "reset"))
	hist, err := o.GetHistory(ctx, "reset", 0)
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)

	require.ErrorIs(t, o.ResetSession(ctx, "nobody"), contractx.ErrNotFound)
}

func TestListTools(t *testing.T) {
	t.Parallel()

	o, _ := newHarness().build(t)
	names := make([]string, 0)
	for _, d := range o.ListTools() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		toolx.ToolQueryInventory,
		toolx.ToolLookupOrders,
		toolx.ToolCheckProduction,
		toolx.ToolGetForecast,
		toolx.ToolManageAlerts,
	}, names)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	rules, err := selectionx.DefaultRules()
	require.NoError(t, err)
	sources := fixture.New().Sources()
	store := statex.NewMemoryStore()
	reg := toolx.NewDefaultRegistry(sources)
	builder := snapshotx.NewBuilder(sources, snapshotx.DefaultConfig())
	selector := selectionx.NewKeywordStrategy(rules)

	_, err = New(nil, reg, builder, selector, DefaultConfig())
	require.Error(t, err)
	_, err = New(store, nil, builder, selector, DefaultConfig())
	require.Error(t, err)
	_, err = New(store, reg, nil, selector, DefaultConfig())
	require.Error(t, err)
	_, err = New(store, reg, builder, nil, DefaultConfig())
	require.Error(t, err)

	bad := DefaultConfig()
	bad.FailurePenalty = -1
	_, err = New(store, reg, builder, selector, bad)
	require.ErrorIs(t, err, contractx.ErrValidation)

	zero := Config{ScoringConfig: nodex.DefaultScoringConfig()}
	o, err := New(store, reg, builder, selector, zero)
	require.NoError(t, err)
	assert.Equal(t, selectionx.DefaultMaxTools, o.cfg.MaxTools)
}

func TestQuestionAboutProblemDispatchesNoAlert(t *testing.T) {
	t.Parallel()

	src := fixture.New()
	h := newHarness()
	h.sources = src.Sources()
	o, _ := h.build(t)

	resp, err := o.ProcessQuery(context.Background(), contractx.Query{
		Text:      "Is there any problem with stock of ABC123?",
		SessionID: "no-alert",
	})
	require.NoError(t, err)
	assert.Empty(t, src.Alerts())

	var alertCall *contractx.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ToolName == toolx.ToolManageAlerts {
			alertCall = &resp.ToolCalls[i]
		}
	}
	require.NotNil(t, alertCall)
	assert.False(t, alertCall.Succeeded())
	assert.Contains(t, alertCall.Error, "action")

	resp, err = o.ProcessQuery(context.Background(), contractx.Query{
		Text:      "Raise an alert: stock of ABC123 is running low",
		SessionID: "alert",
	})
	require.NoError(t, err)
	require.Len(t, src.Alerts(), 1)
	assert.Equal(t, toolx.AlertActionCreate, src.Alerts()[0].Action)
	assert.Equal(t, toolx.AlertTypeLowStock, src.Alerts()[0].AlertType)
}
