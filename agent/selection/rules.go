package selection

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesRaw []byte

type Rule struct {
	Tool     string   `yaml:"tool"`
	Keywords []string `yaml:"keywords"`

	patterns []*regexp.Regexp
}

// Rules is the keyword table. Rule order is the selection priority.
type Rules struct {
	Rules    []Rule              `yaml:"rules"`
	Hints    map[string][]string `yaml:"hints"`
	Insights map[string][]string `yaml:"insights"`
}

// DefaultRules returns the embedded rule table.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesRaw)
}

// LoadRules reads rules from path, or the embedded defaults when path is empty.
func LoadRules(path string) (*Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRules()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selection rules: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode selection rules: %v", contractx.ErrValidation, err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	if len(r.Rules) == 0 {
		return fmt.Errorf("%w: selection rules are empty", contractx.ErrValidation)
	}
	seen := make(map[string]struct{}, len(r.Rules))
	for i := range r.Rules {
		rule := &r.Rules[i]
		rule.Tool = strings.TrimSpace(rule.Tool)
		if rule.Tool == "" {
			return fmt.Errorf("%w: rule %d has no tool", contractx.ErrValidation, i)
		}
		if _, dup := seen[rule.Tool]; dup {
			return fmt.Errorf("%w: tool %s listed twice", contractx.ErrValidation, rule.Tool)
		}
		seen[rule.Tool] = struct{}{}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("%w: rule %s has no keywords", contractx.ErrValidation, rule.Tool)
		}
		rule.patterns = make([]*regexp.Regexp, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			// Keywords match at a word start so "order" finds "orders" but not "reorder".
			rule.patterns = append(rule.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)))
		}
	}
	return nil
}

func (r Rule) matches(lowerQuery string) bool {
	for _, p := range r.patterns {
		if p.MatchString(lowerQuery) {
			return true
		}
	}
	return false
}

// priority returns the index of tool in the rule table, or len(rules) for unknown tools.
func (r *Rules) priority(tool string) int {
	for i, rule := range r.Rules {
		if rule.Tool == tool {
			return i
		}
	}
	return len(r.Rules)
}
