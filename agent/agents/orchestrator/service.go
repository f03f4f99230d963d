package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	extractx "github.com/tanpawarit/factory-copilot/agent/extract"
	nodex "github.com/tanpawarit/factory-copilot/agent/nodes/orchestrator"
	selectionx "github.com/tanpawarit/factory-copilot/agent/selection"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	MaxTools    int           `split_words:"true" default:"3"`
	ToolTimeout time.Duration `split_words:"true" default:"5s"`

	nodex.ScoringConfig
}

func DefaultConfig() Config {
	return Config{
		MaxTools:      selectionx.DefaultMaxTools,
		ToolTimeout:   5 * time.Second,
		ScoringConfig: nodex.DefaultScoringConfig(),
	}
}

func (c Config) Validate() error {
	if c.MaxTools < 0 {
		return fmt.Errorf("%w: max tools must be >= 0, got %d", contractx.ErrValidation, c.MaxTools)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("%w: tool timeout must be >= 0, got %s", contractx.ErrValidation, c.ToolTimeout)
	}
	return c.ScoringConfig.Validate()
}

// ToolCatalog is the read side of the tool registry.
type ToolCatalog interface {
	Resolve(name string) (toolx.Tool, error)
	List() []contractx.Descriptor
}

// History is the message log of one session with its summary.
type History struct {
	SessionID string           `json:"session_id"`
	Messages  []statex.Message `json:"messages"`
	Summary   statex.Summary   `json:"summary"`
}

type Orchestrator struct {
	store     statex.Store
	tools     ToolCatalog
	builder   nodex.ContextBuilder
	selector  contractx.SelectionStrategy
	extractor contractx.ArgumentExtractor

	graphRunner compose.Runnable[nodex.GraphInput, contractx.Response]

	cfg Config
	now func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithExtractor(extractor contractx.ArgumentExtractor) Option {
	return func(o *Orchestrator) {
		if extractor != nil {
			o.extractor = extractor
		}
	}
}

func New(
	store statex.Store,
	tools ToolCatalog,
	builder nodex.ContextBuilder,
	selector contractx.SelectionStrategy,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if tools == nil {
		return nil, errors.New("tool catalog is required")
	}
	if builder == nil {
		return nil, errors.New("context builder is required")
	}
	if selector == nil {
		return nil, errors.New("selection strategy is required")
	}
	if cfg.MaxTools == 0 {
		cfg.MaxTools = selectionx.DefaultMaxTools
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:     store,
		tools:     tools,
		builder:   builder,
		selector:  selector,
		extractor: extractx.HeuristicExtractor{},
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileProcessQueryGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// ProcessQuery runs one turn. Turns of the same session are serialized; an empty session
// id starts a new anonymous session.
func (o *Orchestrator) ProcessQuery(ctx context.Context, q contractx.Query) (contractx.Response, error) {
	q, err := nodex.NormalizeQuery(q, o.cfg.MaxTools)
	if err != nil {
		return contractx.Response{}, err
	}
	if q.SessionID == "" {
		q.SessionID = uuid.NewString()
	}

	conv, release, err := o.store.Acquire(ctx, q.SessionID)
	if err != nil {
		return contractx.Response{}, err
	}
	defer release()

	started := time.Now()
	resp, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Query: q, Conversation: conv})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.Response{}, ctxErr
		}
		return contractx.Response{}, err
	}

	log.Info().
		Str("session_id", resp.SessionID).
		Int("tool_calls", len(resp.ToolCalls)).
		Float64("confidence", resp.Confidence).
		Dur("duration", time.Since(started)).
		Msg("query processed")
	return resp, nil
}

// GetHistory returns the last limit messages, oldest first. limit <= 0 returns all of them.
func (o *Orchestrator) GetHistory(ctx context.Context, sessionID string, limit int) (History, error) {
	conv, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return History{}, err
	}
	return History{
		SessionID: conv.SessionID(),
		Messages:  conv.History(limit),
		Summary:   conv.Summary(),
	}, nil
}

// DeleteSession is idempotent; the bool reports whether anything was removed.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	return o.store.Delete(ctx, sessionID)
}

// ResetSession clears the messages and context of a session while keeping its id.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	if _, err := o.store.Get(ctx, sessionID); err != nil {
		return err
	}
	conv, release, err := o.store.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	conv.Clear()
	return o.store.Commit(ctx, conv)
}

func (o *Orchestrator) ListTools() []contractx.Descriptor {
	return o.tools.List()
}
