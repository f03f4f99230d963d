package contract

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Hint keys understood by the context builder, selection and argument extraction.
const (
	HintEntityType = "entity_type"
	HintEntityID   = "entity_id"
	HintWarehouse  = "warehouse"
)

// Entity types recognised in hints.
const (
	EntitySKU       = "sku"
	EntityCustomer  = "customer"
	EntityWorkOrder = "work_order"
	EntityOrder     = "order"
)

// Hints is caller-supplied bias information such as {entity_type: sku, entity_id: ABC123}.
type Hints map[string]any

func (h Hints) String(key string) string {
	if h == nil {
		return ""
	}
	v, ok := h[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func (h Hints) EntityType() string {
	return strings.ToLower(h.String(HintEntityType))
}

func (h Hints) EntityID() string {
	return h.String(HintEntityID)
}

type Query struct {
	Text      string `json:"query"`
	SessionID string `json:"session_id"`
	Hints     Hints  `json:"context_hints,omitempty"`
	MaxTools  int    `json:"max_tools,omitempty"`
}

type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
}

func (c ToolCall) Succeeded() bool {
	return c.Error == ""
}

type Response struct {
	SessionID   string         `json:"session_id"`
	Message     string         `json:"message"`
	ToolCalls   []ToolCall     `json:"tool_calls"`
	ContextUsed map[string]any `json:"context_used"`
	Confidence  float64        `json:"confidence"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TypeHint is the coarse value type of a tool input field.
type TypeHint string

const (
	TypeString  TypeHint = "string"
	TypeInteger TypeHint = "integer"
	TypeNumber  TypeHint = "number"
	TypeBoolean TypeHint = "boolean"
)

type Field struct {
	Type        TypeHint `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type Descriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema map[string]Field `json:"input_schema"`
}

// Insight is a derived observation about the context snapshot.
type Insight struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// Insight kinds.
const (
	InsightBelowReorder      = "below_reorder_point"
	InsightCriticalInventory = "critical_inventory"
	InsightHighOrderVolume   = "high_order_volume"
	InsightHighOrderValue    = "high_order_value"
	InsightProductionBehind  = "production_behind"
	InsightProductionOnTrack = "production_on_track"
)

// Context sections fetched by the context builder.
const (
	SectionInventory  = "inventory"
	SectionOrders     = "orders"
	SectionProduction = "production"
)

var AllSections = []string{SectionInventory, SectionOrders, SectionProduction}

type ContextSnapshot struct {
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Warehouse  string            `json:"warehouse,omitempty"`
	Inventory  []InventoryItem   `json:"inventory,omitempty"`
	Orders     []Order           `json:"orders,omitempty"`
	Production *ProductionStatus `json:"production,omitempty"`
	Insights   []Insight         `json:"insights,omitempty"`
	Missing    []string          `json:"missing,omitempty"`
	BuiltAt    time.Time         `json:"built_at"`

	fetched map[string]bool
}

func (s *ContextSnapshot) MarkFetched(section string) {
	if s.fetched == nil {
		s.fetched = make(map[string]bool, len(AllSections))
	}
	s.fetched[section] = true
}

// Has reports whether the section was fetched successfully, even if it came back empty.
func (s *ContextSnapshot) Has(section string) bool {
	return s != nil && s.fetched[section]
}

func (s *ContextSnapshot) HasInsight(kind string) bool {
	if s == nil {
		return false
	}
	for _, in := range s.Insights {
		if in.Kind == kind {
			return true
		}
	}
	return false
}

// Complete reports whether every section was gathered.
func (s *ContextSnapshot) Complete() bool {
	return s != nil && len(s.Missing) == 0
}

// AsMap renders the snapshot as the context_used payload of a Response.
func (s *ContextSnapshot) AsMap() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	out := map[string]any{
		"built_at": s.BuiltAt,
	}
	if s.EntityType != "" {
		out["entity_type"] = s.EntityType
	}
	if s.EntityID != "" {
		out["entity_id"] = s.EntityID
	}
	if s.Warehouse != "" {
		out["warehouse"] = s.Warehouse
	}
	if s.Has(SectionInventory) {
		out[SectionInventory] = s.Inventory
	}
	if s.Has(SectionOrders) {
		var total float64
		for _, o := range s.Orders {
			total += o.TotalAmount
		}
		out[SectionOrders] = map[string]any{
			"open_orders": len(s.Orders),
			"total_value": total,
		}
	}
	if s.Has(SectionProduction) && s.Production != nil {
		out[SectionProduction] = *s.Production
	}
	if len(s.Insights) > 0 {
		texts := make([]string, 0, len(s.Insights))
		for _, in := range s.Insights {
			texts = append(texts, in.Text)
		}
		out["insights"] = texts
	}
	if len(s.Missing) > 0 {
		out["missing"] = append([]string(nil), s.Missing...)
	}
	return out
}
