// Package postgres reads inventory, orders and production data from the unified data
// service tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Enum labels as stored by the ingest service.
var (
	openOrderStatuses     = []string{"CONFIRMED", "PARTIAL"}
	openWorkOrderStatuses = []string{"CREATED", "SCHEDULED", "IN_PROGRESS"}
	closedWorkOrderStatus = "CANCELLED"
)

type Config struct {
	DSN         string        `envconfig:"DATABASE_DSN"`
	DialTimeout time.Duration `envconfig:"DATABASE_DIAL_TIMEOUT" default:"5s"`
}

type Source struct {
	db *bun.DB
}

var (
	_ contractx.InventorySource  = (*Source)(nil)
	_ contractx.OrderSource      = (*Source)(nil)
	_ contractx.ProductionSource = (*Source)(nil)
)

// Open connects lazily; the first query dials the server.
func Open(cfg Config) (*Source, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	opts := []pgdriver.Option{
		pgdriver.WithDSN(dsn),
		pgdriver.WithApplicationName("factory-copilot"),
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return New(bun.NewDB(sqldb, pgdialect.New())), nil
}

func New(db *bun.DB) *Source {
	return &Source{db: db}
}

func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}

type inventoryRow struct {
	bun.BaseModel `bun:"table:inventory_snapshots,alias:inv"`

	SKUCode           string  `bun:"sku_code"`
	ProductName       string  `bun:"product_name"`
	WarehouseLocation string  `bun:"warehouse_location"`
	QuantityOnHand    float64 `bun:"quantity_on_hand"`
	QuantityReserved  float64 `bun:"quantity_reserved"`
	QuantityAvailable float64 `bun:"quantity_available"`
	ReorderPoint      float64 `bun:"reorder_point"`
	Status            string  `bun:"status"`
}

type orderRow struct {
	bun.BaseModel `bun:"table:sales_orders,alias:so"`

	SalesOrderNumber string  `bun:"sales_order_number"`
	CustomerID       string  `bun:"customer_id"`
	Status           string  `bun:"status"`
	TotalAmount      float64 `bun:"total_amount"`
}

type productionRow struct {
	bun.BaseModel `bun:"table:work_orders,alias:wo"`

	TotalWorkOrders  int     `bun:"total_work_orders"`
	OpenWorkOrders   int     `bun:"open_work_orders"`
	QuantityOrdered  float64 `bun:"quantity_ordered"`
	QuantityProduced float64 `bun:"quantity_produced"`
}

// FetchInventory returns the latest snapshot per SKU and warehouse.
func (s *Source) FetchInventory(ctx context.Context, filter contractx.InventoryFilter) ([]contractx.InventoryItem, error) {
	var rows []inventoryRow
	if err := s.inventoryQuery(&rows, filter).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]contractx.InventoryItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.InventoryItem{
			SKU:               r.SKUCode,
			ProductName:       r.ProductName,
			Warehouse:         r.WarehouseLocation,
			QuantityOnHand:    r.QuantityOnHand,
			QuantityReserved:  r.QuantityReserved,
			QuantityAvailable: r.QuantityAvailable,
			ReorderPoint:      r.ReorderPoint,
			Status:            strings.ToUpper(r.Status),
		})
	}
	return out, nil
}

func (s *Source) inventoryQuery(rows *[]inventoryRow, filter contractx.InventoryFilter) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(rows).
		DistinctOn("inv.sku_id, inv.warehouse_location").
		ColumnExpr("s.sku_code, s.product_name").
		ColumnExpr("inv.warehouse_location, inv.quantity_on_hand, inv.quantity_reserved").
		ColumnExpr("inv.quantity_available, inv.reorder_point, inv.status::text AS status").
		Join("JOIN skus AS s ON s.id = inv.sku_id").
		Where("s.is_active")
	if filter.SKU != "" {
		q = q.Where("upper(s.sku_code) = upper(?)", filter.SKU)
	}
	if filter.Warehouse != "" {
		q = q.Where("upper(inv.warehouse_location) = upper(?)", filter.Warehouse)
	}
	return q.OrderExpr("inv.sku_id, inv.warehouse_location, inv.created_at DESC")
}

func (s *Source) FetchOpenOrders(ctx context.Context, filter contractx.OrderFilter) ([]contractx.Order, error) {
	var rows []orderRow
	if err := s.ordersQuery(&rows, filter).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]contractx.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.Order{
			OrderID:     r.SalesOrderNumber,
			Customer:    r.CustomerID,
			Status:      strings.ToUpper(r.Status),
			TotalAmount: r.TotalAmount,
		})
	}
	return out, nil
}

func (s *Source) ordersQuery(rows *[]orderRow, filter contractx.OrderFilter) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(rows).
		ColumnExpr("so.sales_order_number, so.customer_id, so.status::text AS status, so.total_amount").
		Where("so.status::text IN (?)", bun.In(openOrderStatuses))
	if filter.Customer != "" {
		q = q.Where("upper(so.customer_id) = upper(?)", filter.Customer)
	}
	if filter.OrderID != "" {
		q = q.Where("upper(so.sales_order_number) = upper(?)", filter.OrderID)
	}
	return q.OrderExpr("so.required_date ASC, so.sales_order_number ASC")
}

func (s *Source) FetchProductionStatus(ctx context.Context) (contractx.ProductionStatus, error) {
	var row productionRow
	if err := s.productionQuery(&row).Scan(ctx); err != nil {
		return contractx.ProductionStatus{}, err
	}
	return contractx.ProductionStatus{
		TotalWorkOrders:  row.TotalWorkOrders,
		OpenWorkOrders:   row.OpenWorkOrders,
		QuantityOrdered:  row.QuantityOrdered,
		QuantityProduced: row.QuantityProduced,
	}, nil
}

// productionQuery aggregates every work order that was not cancelled.
func (s *Source) productionQuery(row *productionRow) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(row).
		ColumnExpr("count(*) AS total_work_orders").
		ColumnExpr("count(*) FILTER (WHERE wo.status::text IN (?)) AS open_work_orders", bun.In(openWorkOrderStatuses)).
		ColumnExpr("coalesce(sum(wo.quantity_ordered), 0) AS quantity_ordered").
		ColumnExpr("coalesce(sum(wo.quantity_produced), 0) AS quantity_produced").
		Where("wo.status::text <> ?", closedWorkOrderStatus)
}
