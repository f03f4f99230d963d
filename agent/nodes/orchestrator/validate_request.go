package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	extractx "github.com/tanpawarit/factory-copilot/agent/extract"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
)

var (
	ErrInvalidMessage = contractx.ErrInvalidMessage
	ErrInvalidSession = contractx.ErrInvalidSession
)

// Stage is the position of a turn in the pipeline. Stages only move forward.
type Stage string

const (
	StageReceived            Stage = "RECEIVED"
	StageContextBuilt        Stage = "CONTEXT_BUILT"
	StageToolsSelected       Stage = "TOOLS_SELECTED"
	StageToolsExecuted       Stage = "TOOLS_EXECUTED"
	StageResponseSynthesized Stage = "RESPONSE_SYNTHESIZED"
	StageMemoryUpdated       Stage = "MEMORY_UPDATED"
	StageDone                Stage = "DONE"
)

// GraphInput carries the query and the conversation whose turn lock the caller holds.
type GraphInput struct {
	Query        contractx.Query
	Conversation *statex.Conversation
}

type GraphState struct {
	SessionID string
	Text      string
	Hints     contractx.Hints
	MaxTools  int
	Now       time.Time
	Stage     Stage

	Conversation *statex.Conversation
	// PriorContext is the conversation context as it was before this turn.
	PriorContext map[string]any
	Entity       extractx.Entity

	Snapshot   *contractx.ContextSnapshot
	Selected   []string
	ToolCalls  []contractx.ToolCall
	Message    string
	Confidence float64
}

// NormalizeQuery trims the query and applies the default tool cap.
func NormalizeQuery(q contractx.Query, defaultMaxTools int) (contractx.Query, error) {
	q.SessionID = strings.TrimSpace(q.SessionID)
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, ErrInvalidMessage
	}
	switch {
	case q.MaxTools < 0:
		return q, fmt.Errorf("%w: max_tools must be >= 0, got %d", contractx.ErrValidation, q.MaxTools)
	case q.MaxTools == 0:
		q.MaxTools = defaultMaxTools
	}
	return q, nil
}

func ValidateRequest(in GraphInput, defaultMaxTools int, nowFn func() time.Time) (*GraphState, error) {
	q, err := NormalizeQuery(in.Query, defaultMaxTools)
	if err != nil {
		return nil, err
	}
	if q.SessionID == "" {
		return nil, ErrInvalidSession
	}
	if in.Conversation == nil {
		return nil, fmt.Errorf("%w: conversation is nil", contractx.ErrValidation)
	}
	if in.Conversation.SessionID() != q.SessionID {
		return nil, fmt.Errorf("%w: conversation %s does not belong to session %s",
			contractx.ErrValidation, in.Conversation.SessionID(), q.SessionID)
	}

	return &GraphState{
		SessionID:    q.SessionID,
		Text:         q.Text,
		Hints:        q.Hints,
		MaxTools:     q.MaxTools,
		Now:          nowFn().UTC(),
		Stage:        StageReceived,
		Conversation: in.Conversation,
	}, nil
}
