package prompt

import (
	_ "embed"
	"strconv"
	"strings"
)

var (
	//go:embed template/selector.txt
	selectorRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Selector string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Selector: strings.TrimSpace(selectorRaw),
	}
}

// RenderSelector fills the selector template. An empty context renders as "none".
func (p PromptSet) RenderSelector(maxTools int, contextLines []string) string {
	ctx := strings.TrimSpace(strings.Join(contextLines, "\n"))
	if ctx == "" {
		ctx = "none"
	}
	return strings.NewReplacer(
		"{{max_tools}}", strconv.Itoa(maxTools),
		"{{context}}", ctx,
	).Replace(p.Selector)
}
