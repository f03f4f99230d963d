package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	"golang.org/x/sync/errgroup"
)

// Config holds the per-section timeout and the insight thresholds.
type Config struct {
	FetchTimeout          time.Duration `envconfig:"CONTEXT_TIMEOUT" default:"3s"`
	HighOrderVolume       int           `envconfig:"HIGH_ORDER_VOLUME" default:"5"`
	HighOrderValue        float64       `envconfig:"HIGH_ORDER_VALUE" default:"50000"`
	ProductionBehindRate  float64       `envconfig:"PRODUCTION_BEHIND_RATE" default:"50"`
	ProductionOnTrackRate float64       `envconfig:"PRODUCTION_ON_TRACK_RATE" default:"80"`
}

func DefaultConfig() Config {
	return Config{
		FetchTimeout:          3 * time.Second,
		HighOrderVolume:       5,
		HighOrderValue:        50000,
		ProductionBehindRate:  50,
		ProductionOnTrackRate: 80,
	}
}

func (c Config) Validate() error {
	if c.FetchTimeout < 0 {
		return fmt.Errorf("%w: context timeout must be >= 0", contractx.ErrValidation)
	}
	if c.ProductionBehindRate > c.ProductionOnTrackRate {
		return fmt.Errorf("%w: production behind rate %.1f exceeds on-track rate %.1f",
			contractx.ErrValidation, c.ProductionBehindRate, c.ProductionOnTrackRate)
	}
	return nil
}

// Request scopes a snapshot to one entity. Empty fields mean "everything".
type Request struct {
	EntityType string
	EntityID   string
	Warehouse  string
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// Builder gathers inventory, orders and production in parallel and derives insights.
// A failed or timed out section is recorded in Missing and never fails the build.
type Builder struct {
	sources contractx.Sources
	cfg     Config
	now     func() time.Time
}

func NewBuilder(sources contractx.Sources, cfg Config, opts ...Option) *Builder {
	b := &Builder{
		sources: sources,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build returns an error only when ctx is done; collaborator failures degrade the snapshot.
func (b *Builder) Build(ctx context.Context, req Request) (*contractx.ContextSnapshot, error) {
	snap := &contractx.ContextSnapshot{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Warehouse:  req.Warehouse,
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	record := func(section string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed[section] = err
			return
		}
		snap.MarkFetched(section)
	}

	// Every goroutine returns nil so one failing section never cancels its siblings.
	g, gctx := errgroup.WithContext(ctx)
	if src := b.sources.Inventory; src != nil {
		g.Go(func() error {
			items, err := fetch(gctx, b.cfg.FetchTimeout, func(ctx context.Context) ([]contractx.InventoryItem, error) {
				return src.FetchInventory(ctx, inventoryFilter(req))
			})
			if err == nil {
				mu.Lock()
				snap.Inventory = items
				mu.Unlock()
			}
			record(contractx.SectionInventory, err)
			return nil
		})
	}
	if src := b.sources.Orders; src != nil {
		g.Go(func() error {
			orders, err := fetch(gctx, b.cfg.FetchTimeout, func(ctx context.Context) ([]contractx.Order, error) {
				return src.FetchOpenOrders(ctx, orderFilter(req))
			})
			if err == nil {
				mu.Lock()
				snap.Orders = orders
				mu.Unlock()
			}
			record(contractx.SectionOrders, err)
			return nil
		})
	}
	if src := b.sources.Production; src != nil {
		g.Go(func() error {
			status, err := fetch(gctx, b.cfg.FetchTimeout, src.FetchProductionStatus)
			if err == nil {
				mu.Lock()
				snap.Production = &status
				mu.Unlock()
			}
			record(contractx.SectionProduction, err)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, section := range contractx.AllSections {
		err, ok := failed[section]
		if !ok {
			continue
		}
		snap.Missing = append(snap.Missing, section)
		log.Warn().
			Err(err).
			Str("section", section).
			Str("entity_id", req.EntityID).
			Msg("context section omitted")
	}

	snap.Insights = DeriveInsights(snap, b.cfg)
	snap.BuiltAt = b.now().UTC()
	return snap, nil
}

// fetch runs one collaborator call under its own timeout.
func fetch[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := call(ctx)
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = ctxErr
		}
		return zero, fmt.Errorf("%w: %w", contractx.ErrContextFetch, err)
	}
	return out, nil
}

func inventoryFilter(req Request) contractx.InventoryFilter {
	f := contractx.InventoryFilter{Warehouse: req.Warehouse}
	switch req.EntityType {
	case contractx.EntitySKU, "":
		f.SKU = req.EntityID
	}
	return f
}

func orderFilter(req Request) contractx.OrderFilter {
	var f contractx.OrderFilter
	switch req.EntityType {
	case contractx.EntityCustomer:
		f.Customer = req.EntityID
	case contractx.EntityOrder:
		f.OrderID = req.EntityID
	}
	return f
}
