package extract

import (
	"context"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

type nopSource struct{}

func (nopSource) FetchInventory(context.Context, contractx.InventoryFilter) ([]contractx.InventoryItem, error) {
	return nil, nil
}

func (nopSource) FetchOpenOrders(context.Context, contractx.OrderFilter) ([]contractx.Order, error) {
	return nil, nil
}

func (nopSource) FetchProductionStatus(context.Context) (contractx.ProductionStatus, error) {
	return contractx.ProductionStatus{}, nil
}

func (nopSource) FetchForecast(context.Context, string, int) (contractx.Forecast, error) {
	return contractx.Forecast{}, nil
}

func (nopSource) DispatchAlert(context.Context, contractx.AlertPayload) (contractx.AlertReceipt, error) {
	return contractx.AlertReceipt{Accepted: true}, nil
}
