package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
)

const emptyAnswer = "I've analyzed the available data. How can I help you further?"

// ScoringConfig holds the confidence coefficients. Any non-negative bonus and penalties
// keep confidence monotonic in successes and failures.
type ScoringConfig struct {
	Base                   float64 `envconfig:"CONFIDENCE_BASE" default:"0.5"`
	SuccessBonus           float64 `envconfig:"CONFIDENCE_SUCCESS_BONUS" default:"0.1"`
	FailurePenalty         float64 `envconfig:"CONFIDENCE_FAILURE_PENALTY" default:"0.15"`
	MissingContextPenalty  float64 `envconfig:"CONFIDENCE_MISSING_CONTEXT_PENALTY" default:"0.05"`
	PenalizeMissingContext bool    `envconfig:"PENALIZE_MISSING_CONTEXT" default:"false"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Base:                  0.5,
		SuccessBonus:          0.1,
		FailurePenalty:        0.15,
		MissingContextPenalty: 0.05,
	}
}

func (c ScoringConfig) Validate() error {
	if c.Base < 0 || c.Base > 1 {
		return fmt.Errorf("%w: confidence base must be within [0,1], got %v", contractx.ErrValidation, c.Base)
	}
	if c.SuccessBonus < 0 || c.FailurePenalty < 0 || c.MissingContextPenalty < 0 {
		return fmt.Errorf("%w: confidence bonus and penalties must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// Confidence scores a turn: base, plus a bonus per successful call, minus a penalty per
// failed call and, when enabled, per omitted context section. Clamped to [0,1].
func Confidence(calls []contractx.ToolCall, snap *contractx.ContextSnapshot, cfg ScoringConfig) float64 {
	score := cfg.Base
	for _, c := range calls {
		if c.Succeeded() {
			score += cfg.SuccessBonus
		} else {
			score -= cfg.FailurePenalty
		}
	}
	if cfg.PenalizeMissingContext && snap != nil {
		score -= cfg.MissingContextPenalty * float64(len(snap.Missing))
	}
	return min(max(score, 0), 1)
}

func SynthesizeResponse(in *GraphState, cfg ScoringConfig) (*GraphState, error) {
	in.Message = composeMessage(in.ToolCalls, in.Snapshot)
	in.Confidence = Confidence(in.ToolCalls, in.Snapshot, cfg)
	in.Stage = StageResponseSynthesized
	return in, nil
}

func composeMessage(calls []contractx.ToolCall, snap *contractx.ContextSnapshot) string {
	var b strings.Builder

	var failed []contractx.ToolCall
	for _, c := range calls {
		if !c.Succeeded() {
			failed = append(failed, c)
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Based on the available data:")
		}
		fmt.Fprintf(&b, "\n• %s: %s", displayName(c.ToolName), summarize(c.Result))
	}

	if snap != nil && len(snap.Insights) > 0 {
		if b.Len() == 0 {
			b.WriteString("Based on the available data:")
		}
		b.WriteString("\n\nKey insights:")
		for _, insight := range snap.Insights {
			fmt.Fprintf(&b, "\n• %s", insight.Text)
		}
	}

	if len(failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Note: Some tools encountered issues:")
		for _, c := range failed {
			fmt.Fprintf(&b, "\n• Could not retrieve %s data (%s)", displayName(c.ToolName), c.Error)
		}
	}

	if b.Len() == 0 {
		return emptyAnswer
	}
	return b.String()
}

func summarize(result map[string]any) string {
	if s, ok := result[toolx.ResultSummary].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fmt.Sprintf("Retrieved %d fields", len(result))
}

// displayName turns query_inventory into Query Inventory.
func displayName(tool string) string {
	words := strings.FieldsFunc(tool, func(r rune) bool { return r == '_' || r == '.' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
