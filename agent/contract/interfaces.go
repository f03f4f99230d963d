package contract

import "context"

type InventoryItem struct {
	SKU               string  `json:"sku_code"`
	ProductName       string  `json:"product_name,omitempty"`
	Warehouse         string  `json:"warehouse"`
	QuantityOnHand    float64 `json:"quantity_on_hand"`
	QuantityReserved  float64 `json:"quantity_reserved"`
	QuantityAvailable float64 `json:"quantity_available"`
	ReorderPoint      float64 `json:"reorder_point"`
	Status            string  `json:"status,omitempty"`
}

func (i InventoryItem) BelowReorderPoint() bool {
	return i.QuantityAvailable <= i.ReorderPoint
}

type InventoryFilter struct {
	SKU       string
	Warehouse string
}

type Order struct {
	OrderID     string  `json:"order_id"`
	Customer    string  `json:"customer"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
}

type OrderFilter struct {
	Customer string
	OrderID  string
}

type ProductionStatus struct {
	TotalWorkOrders  int     `json:"total_work_orders"`
	OpenWorkOrders   int     `json:"open_work_orders"`
	QuantityOrdered  float64 `json:"quantity_ordered"`
	QuantityProduced float64 `json:"quantity_produced"`
}

// CompletionRate is the produced/ordered percentage, 0 when nothing was ordered.
func (p ProductionStatus) CompletionRate() float64 {
	if p.QuantityOrdered <= 0 {
		return 0
	}
	return p.QuantityProduced / p.QuantityOrdered * 100
}

type Forecast struct {
	EntityID        string    `json:"entity_id"`
	HorizonDays     int       `json:"horizon_days"`
	Values          []float64 `json:"forecast_values"`
	ConfidenceLevel float64   `json:"confidence_level"`
}

type AlertPayload struct {
	Action    string `json:"action"`
	AlertType string `json:"alert_type"`
	EntityID  string `json:"entity_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

type AlertReceipt struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id,omitempty"`
}

type InventorySource interface {
	FetchInventory(ctx context.Context, filter InventoryFilter) ([]InventoryItem, error)
}

type OrderSource interface {
	FetchOpenOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
}

type ProductionSource interface {
	FetchProductionStatus(ctx context.Context) (ProductionStatus, error)
}

type ForecastSource interface {
	FetchForecast(ctx context.Context, entityID string, horizonDays int) (Forecast, error)
}

type AlertDispatcher interface {
	DispatchAlert(ctx context.Context, payload AlertPayload) (AlertReceipt, error)
}

// Sources bundles the collaborators a deployment wires in. Nil members disable the
// context sections and tools that depend on them.
type Sources struct {
	Inventory  InventorySource
	Orders     OrderSource
	Production ProductionSource
	Forecast   ForecastSource
	Alerts     AlertDispatcher
}

// SelectionRequest is what a SelectionStrategy sees when choosing tools.
type SelectionRequest struct {
	Query    string
	Hints    Hints
	Snapshot *ContextSnapshot
	Tools    []Descriptor
	MaxTools int
}

type SelectionStrategy interface {
	Select(ctx context.Context, req SelectionRequest) ([]string, error)
}

// ExtractionRequest is the input of an ArgumentExtractor for one tool.
type ExtractionRequest struct {
	Query        string
	Hints        Hints
	Snapshot     *ContextSnapshot
	Conversation map[string]any
	Tool         Descriptor
}

type ArgumentExtractor interface {
	Extract(req ExtractionRequest) map[string]any
}
