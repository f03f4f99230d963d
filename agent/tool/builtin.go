package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

const (
	ToolQueryInventory  = "query_inventory"
	ToolLookupOrders    = "lookup_orders"
	ToolCheckProduction = "check_production"
	ToolGetForecast     = "get_forecast"
	ToolManageAlerts    = "manage_alerts"
)

// ResultSummary is the result key holding a one-line human readable summary.
const ResultSummary = "summary"

// Forecast periods and the horizon, in days, each one asks for.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

var periodHorizonDays = map[string]int{
	PeriodDaily:   7,
	PeriodWeekly:  28,
	PeriodMonthly: 90,
}

// HorizonDays maps a forecast period to its horizon; unknown periods use weekly.
func HorizonDays(period string) int {
	if days, ok := periodHorizonDays[strings.ToLower(strings.TrimSpace(period))]; ok {
		return days
	}
	return periodHorizonDays[PeriodWeekly]
}

// Alert actions and types accepted by manage_alerts.
const (
	AlertActionCreate      = "create"
	AlertActionAcknowledge = "acknowledge"
	AlertActionResolve     = "resolve"

	AlertTypeLowStock        = "low_stock"
	AlertTypeProductionDelay = "production_delay"
	AlertTypeOrderIssue      = "order_issue"
	AlertTypeGeneral         = "general"
)

var alertSeverity = map[string]string{
	AlertTypeLowStock:        "high",
	AlertTypeProductionDelay: "medium",
	AlertTypeOrderIssue:      "medium",
	AlertTypeGeneral:         "low",
}

type InventoryTool struct {
	source contractx.InventorySource
}

func NewInventoryTool(source contractx.InventorySource) *InventoryTool {
	return &InventoryTool{source: source}
}

func (t *InventoryTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{
		Name:        ToolQueryInventory,
		Description: "Query current inventory levels for a SKU, optionally in one warehouse.",
		InputSchema: map[string]contractx.Field{
			"sku_code":  {Type: contractx.TypeString, Description: "SKU code such as ABC123"},
			"warehouse": {Type: contractx.TypeString, Description: "Warehouse code; empty for all warehouses"},
		},
	}
}

func (t *InventoryTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	filter := contractx.InventoryFilter{
		SKU:       stringArg(args, "sku_code"),
		Warehouse: warehouseFilter(stringArg(args, "warehouse")),
	}
	items, err := t.source.FetchInventory(ctx, filter)
	if err != nil {
		return nil, err
	}

	var available float64
	belowReorder := make([]string, 0)
	for _, item := range items {
		available += item.QuantityAvailable
		if item.BelowReorderPoint() {
			belowReorder = append(belowReorder, item.SKU)
		}
	}

	var summary string
	switch {
	case len(items) == 0 && filter.SKU != "":
		summary = fmt.Sprintf("No inventory found for %s", filter.SKU)
	case len(items) == 0:
		summary = "No inventory records found"
	case len(items) == 1:
		item := items[0]
		summary = fmt.Sprintf("%s has %s units available in %s", item.SKU, formatQty(item.QuantityAvailable), item.Warehouse)
	default:
		summary = fmt.Sprintf("%d inventory records, %s units available", len(items), formatQty(available))
	}
	if len(belowReorder) > 0 {
		summary += fmt.Sprintf(" (%d at or below reorder point)", len(belowReorder))
	}

	return map[string]any{
		"items":         items,
		"count":         len(items),
		"qty_available": available,
		"below_reorder": belowReorder,
		ResultSummary:   summary,
	}, nil
}

type OrdersTool struct {
	source contractx.OrderSource
}

func NewOrdersTool(source contractx.OrderSource) *OrdersTool {
	return &OrdersTool{source: source}
}

func (t *OrdersTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{
		Name:        ToolLookupOrders,
		Description: "Look up open sales orders by customer or order number.",
		InputSchema: map[string]contractx.Field{
			"customer_id":  {Type: contractx.TypeString, Description: "Customer identifier"},
			"order_number": {Type: contractx.TypeString, Description: "Sales order number such as SO-1001"},
		},
	}
}

func (t *OrdersTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	filter := contractx.OrderFilter{
		Customer: stringArg(args, "customer_id"),
		OrderID:  stringArg(args, "order_number"),
	}
	orders, err := t.source.FetchOpenOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, o := range orders {
		total += o.TotalAmount
	}

	summary := fmt.Sprintf("Found %d open orders worth %s", len(orders), strconv.FormatFloat(total, 'f', 2, 64))
	if filter.OrderID != "" && len(orders) == 1 {
		summary = fmt.Sprintf("Order %s for %s is %s (%s)", orders[0].OrderID, orders[0].Customer, orders[0].Status,
			strconv.FormatFloat(orders[0].TotalAmount, 'f', 2, 64))
	}

	return map[string]any{
		"orders":      orders,
		"order_count": len(orders),
		"total_value": total,
		ResultSummary: summary,
	}, nil
}

type ProductionTool struct {
	source contractx.ProductionSource
}

func NewProductionTool(source contractx.ProductionSource) *ProductionTool {
	return &ProductionTool{source: source}
}

func (t *ProductionTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{
		Name:        ToolCheckProduction,
		Description: "Check production progress across open work orders.",
		InputSchema: map[string]contractx.Field{
			"work_order_id": {
				Type:        contractx.TypeString,
				Description: "Work order id such as WO-2001. Informational only: it is echoed in the result and the status always covers all open work orders",
			},
		},
	}
}

func (t *ProductionTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	status, err := t.source.FetchProductionStatus(ctx)
	if err != nil {
		return nil, err
	}
	rate := status.CompletionRate()
	out := map[string]any{
		"total_work_orders": status.TotalWorkOrders,
		"open_work_orders":  status.OpenWorkOrders,
		"quantity_ordered":  status.QuantityOrdered,
		"quantity_produced": status.QuantityProduced,
		"completion_rate":   rate,
		ResultSummary: fmt.Sprintf("%d open work orders, %s of %s units produced (%.1f%%)",
			status.OpenWorkOrders, formatQty(status.QuantityProduced), formatQty(status.QuantityOrdered), rate),
	}
	if id := stringArg(args, "work_order_id"); id != "" {
		out["work_order_id"] = id
	}
	return out, nil
}

type ForecastTool struct {
	source contractx.ForecastSource
}

func NewForecastTool(source contractx.ForecastSource) *ForecastTool {
	return &ForecastTool{source: source}
}

func (t *ForecastTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{
		Name:        ToolGetForecast,
		Description: "Get the demand forecast for a SKU.",
		InputSchema: map[string]contractx.Field{
			"sku_code": {Type: contractx.TypeString, Description: "SKU code", Required: true},
			"period": {
				Type:        contractx.TypeString,
				Description: "Forecast granularity",
				Enum:        []string{PeriodDaily, PeriodWeekly, PeriodMonthly},
			},
		},
	}
}

func (t *ForecastTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	sku, err := requireArg(args, "sku_code")
	if err != nil {
		return nil, err
	}
	period := strings.ToLower(stringArg(args, "period"))
	if period == "" {
		period = PeriodWeekly
	}
	if _, ok := periodHorizonDays[period]; !ok {
		return nil, fmt.Errorf("%w: unknown period %q", contractx.ErrValidation, period)
	}
	horizon := HorizonDays(period)

	fc, err := t.source.FetchForecast(ctx, sku, horizon)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, v := range fc.Values {
		total += v
	}
	return map[string]any{
		"sku_code":         sku,
		"period":           period,
		"horizon_days":     horizon,
		"forecast_values":  fc.Values,
		"total_forecast":   total,
		"confidence_level": fc.ConfidenceLevel,
		ResultSummary: fmt.Sprintf("%s demand over the next %d days is %s units (confidence %.2f)",
			sku, horizon, formatQty(total), fc.ConfidenceLevel),
	}, nil
}

type AlertTool struct {
	dispatcher contractx.AlertDispatcher
}

func NewAlertTool(dispatcher contractx.AlertDispatcher) *AlertTool {
	return &AlertTool{dispatcher: dispatcher}
}

func (t *AlertTool) Descriptor() contractx.Descriptor {
	return contractx.Descriptor{
		Name:        ToolManageAlerts,
		Description: "Create, acknowledge or resolve an operational alert.",
		InputSchema: map[string]contractx.Field{
			"action": {
				Type:     contractx.TypeString,
				Required: true,
				Enum:     []string{AlertActionCreate, AlertActionAcknowledge, AlertActionResolve},
			},
			"alert_type": {
				Type: contractx.TypeString,
				Enum: []string{AlertTypeLowStock, AlertTypeProductionDelay, AlertTypeOrderIssue, AlertTypeGeneral},
			},
			"entity_id": {Type: contractx.TypeString, Description: "SKU, order or work order the alert is about"},
			"message":   {Type: contractx.TypeString, Description: "Free text alert message"},
		},
	}
}

func (t *AlertTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	action, err := requireArg(args, "action")
	if err != nil {
		return nil, err
	}
	action = strings.ToLower(action)
	switch action {
	case AlertActionCreate, AlertActionAcknowledge, AlertActionResolve:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", contractx.ErrValidation, action)
	}

	alertType := strings.ToLower(stringArg(args, "alert_type"))
	severity, ok := alertSeverity[alertType]
	if !ok {
		alertType = AlertTypeGeneral
		severity = alertSeverity[AlertTypeGeneral]
	}

	payload := contractx.AlertPayload{
		Action:    action,
		AlertType: alertType,
		EntityID:  stringArg(args, "entity_id"),
		Message:   stringArg(args, "message"),
		Severity:  severity,
	}
	receipt, err := t.dispatcher.DispatchAlert(ctx, payload)
	if err != nil {
		return nil, err
	}
	if !receipt.Accepted {
		return nil, fmt.Errorf("alert %s was rejected", alertType)
	}

	summary := fmt.Sprintf("Alert %s (%s) dispatched", alertType, action)
	if payload.EntityID != "" {
		summary = fmt.Sprintf("Alert %s (%s) dispatched for %s", alertType, action, payload.EntityID)
	}
	return map[string]any{
		"accepted":    receipt.Accepted,
		"message_id":  receipt.MessageID,
		"alert_type":  alertType,
		"severity":    severity,
		ResultSummary: summary,
	}, nil
}

func warehouseFilter(w string) string {
	if strings.EqualFold(w, "default") || strings.EqualFold(w, "all") {
		return ""
	}
	return w
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
