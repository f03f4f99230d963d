// Package fixture serves a small, fixed factory data set for local runs and tests.
package fixture

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// Source implements every collaborator interface over in-memory data.
type Source struct {
	inventory  []contractx.InventoryItem
	orders     []contractx.Order
	production contractx.ProductionStatus

	mu     sync.Mutex
	alerts []contractx.AlertPayload
}

var (
	_ contractx.InventorySource  = (*Source)(nil)
	_ contractx.OrderSource      = (*Source)(nil)
	_ contractx.ProductionSource = (*Source)(nil)
	_ contractx.ForecastSource   = (*Source)(nil)
	_ contractx.AlertDispatcher  = (*Source)(nil)
)

// New returns a source seeded with the sample plant: three SKUs across two warehouses,
// a handful of open orders and a production backlog that is behind schedule.
func New() *Source {
	return &Source{
		inventory: []contractx.InventoryItem{
			{SKU: "ABC123", ProductName: "Hex Bolt M8", Warehouse: "WH_SOUTH", QuantityOnHand: 300, QuantityReserved: 50, QuantityAvailable: 250, ReorderPoint: 100, Status: "OPTIMAL"},
			{SKU: "XYZ789", ProductName: "Steel Bracket", Warehouse: "WH_NORTH", QuantityOnHand: 40, QuantityReserved: 15, QuantityAvailable: 25, ReorderPoint: 60, Status: "CRITICAL"},
			{SKU: "DEF456", ProductName: "Gear Assembly", Warehouse: "WH_NORTH", QuantityOnHand: 500, QuantityReserved: 20, QuantityAvailable: 480, ReorderPoint: 150, Status: "EXCESS"},
		},
		orders: []contractx.Order{
			{OrderID: "SO-1001", Customer: "CUST-ACME", Status: "CONFIRMED", TotalAmount: 12500},
			{OrderID: "SO-1002", Customer: "CUST-ACME", Status: "PARTIAL", TotalAmount: 8300},
			{OrderID: "SO-1003", Customer: "CUST-GLOBEX", Status: "CONFIRMED", TotalAmount: 21000},
		},
		production: contractx.ProductionStatus{
			TotalWorkOrders:  6,
			OpenWorkOrders:   4,
			QuantityOrdered:  1200,
			QuantityProduced: 540,
		},
	}
}

func (s *Source) FetchInventory(ctx context.Context, filter contractx.InventoryFilter) ([]contractx.InventoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]contractx.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		if filter.SKU != "" && !strings.EqualFold(item.SKU, filter.SKU) {
			continue
		}
		if filter.Warehouse != "" && !strings.EqualFold(item.Warehouse, filter.Warehouse) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Source) FetchOpenOrders(ctx context.Context, filter contractx.OrderFilter) ([]contractx.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]contractx.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.Customer != "" && !strings.EqualFold(o.Customer, filter.Customer) {
			continue
		}
		if filter.OrderID != "" && !strings.EqualFold(o.OrderID, filter.OrderID) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Source) FetchProductionStatus(ctx context.Context) (contractx.ProductionStatus, error) {
	if err := ctx.Err(); err != nil {
		return contractx.ProductionStatus{}, err
	}
	return s.production, nil
}

// FetchForecast returns a flat daily demand derived from the SKU's reserved quantity.
func (s *Source) FetchForecast(ctx context.Context, entityID string, horizonDays int) (contractx.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Forecast{}, err
	}
	daily := 10.0
	for _, item := range s.inventory {
		if strings.EqualFold(item.SKU, entityID) && item.QuantityReserved > 0 {
			daily = item.QuantityReserved / 5
			break
		}
	}
	values := make([]float64, horizonDays)
	for i := range values {
		values[i] = daily
	}
	return contractx.Forecast{
		EntityID:        entityID,
		HorizonDays:     horizonDays,
		Values:          values,
		ConfidenceLevel: 80,
	}, nil
}

func (s *Source) DispatchAlert(ctx context.Context, payload contractx.AlertPayload) (contractx.AlertReceipt, error) {
	if err := ctx.Err(); err != nil {
		return contractx.AlertReceipt{}, err
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, payload)
	s.mu.Unlock()
	return contractx.AlertReceipt{Accepted: true, MessageID: uuid.NewString()}, nil
}

// Alerts returns the alerts dispatched so far.
func (s *Source) Alerts() []contractx.AlertPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contractx.AlertPayload(nil), s.alerts...)
}

// Sources exposes the fixture as every collaborator.
func (s *Source) Sources() contractx.Sources {
	return contractx.Sources{
		Inventory:  s,
		Orders:     s,
		Production: s,
		Forecast:   s,
		Alerts:     s,
	}
}
