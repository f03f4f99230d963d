package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// Tool is an isolated capability. Implementations must not share mutable state with
// other tools so that a turn can run them concurrently.
type Tool interface {
	Descriptor() contractx.Descriptor
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

var ErrRegistryFrozen = errors.New("tool registry is frozen")

// Registry resolves tools by name. Register every tool during startup and call Freeze
// before serving; Resolve and List take no locks.
type Registry struct {
	tools  map[string]Tool
	order  []string
	frozen atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: tool is nil", contractx.ErrValidation)
	}
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	name := strings.TrimSpace(t.Descriptor().Name)
	if name == "" {
		return fmt.Errorf("%w: tool name is empty", contractx.ErrValidation)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics on error. Duplicate registration is a startup bug.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

func (r *Registry) Resolve(name string) (Tool, error) {
	t, ok := r.tools[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns descriptors in registration order, which is also the selection priority.
func (r *Registry) List() []contractx.Descriptor {
	out := make([]contractx.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}

// NewDefaultRegistry registers the built-in tools whose collaborator is present, in
// priority order, and freezes the registry.
func NewDefaultRegistry(sources contractx.Sources) *Registry {
	r := NewRegistry()
	if sources.Inventory != nil {
		r.MustRegister(NewInventoryTool(sources.Inventory))
	}
	if sources.Orders != nil {
		r.MustRegister(NewOrdersTool(sources.Orders))
	}
	if sources.Production != nil {
		r.MustRegister(NewProductionTool(sources.Production))
	}
	if sources.Forecast != nil {
		r.MustRegister(NewForecastTool(sources.Forecast))
	}
	if sources.Alerts != nil {
		r.MustRegister(NewAlertTool(sources.Alerts))
	}
	r.Freeze()
	return r
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func requireArg(args map[string]any, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", contractx.ErrValidation, key)
	}
	return v, nil
}
