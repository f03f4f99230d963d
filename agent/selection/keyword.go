package selection

import (
	"context"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// DefaultMaxTools applies when a request does not set its own cap.
const DefaultMaxTools = 3

// KeywordStrategy picks tools whose keywords occur in the query, plus tools the caller's
// entity hint points at. When neither yields anything it falls back to the tools linked
// to context insights. Results follow rule order and are capped at MaxTools.
type KeywordStrategy struct {
	rules *Rules
}

var _ contractx.SelectionStrategy = (*KeywordStrategy)(nil)

func NewKeywordStrategy(rules *Rules) *KeywordStrategy {
	return &KeywordStrategy{rules: rules}
}

func (s *KeywordStrategy) Select(_ context.Context, req contractx.SelectionRequest) ([]string, error) {
	available := make(map[string]int, len(req.Tools))
	for i, d := range req.Tools {
		available[d.Name] = i
	}

	picked := make(map[string]struct{})
	add := func(name string) {
		if _, ok := available[name]; ok {
			picked[name] = struct{}{}
		}
	}

	query := strings.ToLower(req.Query)
	for _, rule := range s.rules.Rules {
		if rule.matches(query) {
			add(rule.Tool)
		}
	}
	if entityType := req.Hints.EntityType(); entityType != "" {
		for _, name := range s.rules.Hints[entityType] {
			add(name)
		}
	}
	if len(picked) == 0 && req.Snapshot != nil {
		for _, in := range req.Snapshot.Insights {
			for _, name := range s.rules.Insights[in.Kind] {
				add(name)
			}
		}
	}

	out := make([]string, 0, len(picked))
	for name := range picked {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := s.rules.priority(out[i]), s.rules.priority(out[j])
		if pi != pj {
			return pi < pj
		}
		return available[out[i]] < available[out[j]]
	})
	return capTools(out, req.MaxTools), nil
}

func capTools(names []string, maxTools int) []string {
	if maxTools <= 0 {
		maxTools = DefaultMaxTools
	}
	if len(names) > maxTools {
		return names[:maxTools]
	}
	return names
}
