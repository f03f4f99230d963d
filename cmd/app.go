package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/factory-copilot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	llmx "github.com/tanpawarit/factory-copilot/agent/llm"
	selectionx "github.com/tanpawarit/factory-copilot/agent/selection"
	snapshotx "github.com/tanpawarit/factory-copilot/agent/snapshot"
	"github.com/tanpawarit/factory-copilot/agent/source/alert"
	"github.com/tanpawarit/factory-copilot/agent/source/fixture"
	"github.com/tanpawarit/factory-copilot/agent/source/forecast"
	"github.com/tanpawarit/factory-copilot/agent/source/postgres"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
	configx "github.com/tanpawarit/factory-copilot/pkg/config"
	qstashx "github.com/tanpawarit/factory-copilot/pkg/qstash"
)

const envPrefix = "COPILOT"

const (
	sourceFixture  = "fixture"
	sourcePostgres = "postgres"

	selectorKeyword = "keyword"
	selectorModel   = "model"
)

// AppConfig is the top-level settings plus each component's own Config, all read with
// the COPILOT prefix.
type AppConfig struct {
	Source        string        `split_words:"true" default:"fixture"`
	Selector      string        `split_words:"true" default:"keyword"`
	RulesFile     string        `split_words:"true"`
	SessionMaxAge time.Duration `split_words:"true" default:"30m"`
	SweepInterval time.Duration `split_words:"true" default:"5m"`
	MaxMessages   int           `split_words:"true" default:"100"`

	Orchestrator orchestrator.Config `ignored:"true"`
	Context      snapshotx.Config    `ignored:"true"`
	Postgres     postgres.Config     `ignored:"true"`
	Forecast     forecast.Config     `ignored:"true"`
	Alert        alert.Config        `ignored:"true"`
}

func LoadAppConfig() (*AppConfig, error) {
	cfg, err := configx.New[AppConfig](envPrefix)
	if err != nil {
		return nil, err
	}
	if err := loadInto(&cfg.Orchestrator); err != nil {
		return nil, err
	}
	if err := loadInto(&cfg.Context); err != nil {
		return nil, err
	}
	if err := loadInto(&cfg.Postgres); err != nil {
		return nil, err
	}
	if err := loadInto(&cfg.Forecast); err != nil {
		return nil, err
	}
	if err := loadInto(&cfg.Alert); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadInto[T any](dst *T) error {
	v, err := configx.New[T](envPrefix)
	if err != nil {
		return err
	}
	*dst = *v
	return nil
}

func (c AppConfig) Validate() error {
	switch strings.ToLower(c.Source) {
	case sourceFixture, sourcePostgres:
	default:
		return fmt.Errorf("%w: unknown source %q", contractx.ErrValidation, c.Source)
	}
	switch strings.ToLower(c.Selector) {
	case selectorKeyword, selectorModel:
	default:
		return fmt.Errorf("%w: unknown selector %q", contractx.ErrValidation, c.Selector)
	}
	if c.SessionMaxAge < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("%w: session max age and sweep interval must be >= 0", contractx.ErrValidation)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return err
	}
	return c.Context.Validate()
}

// App owns the orchestrator and everything it was built from.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *statex.MemoryStore

	closers []func() error
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewApp wires the orchestrator from cfg and starts the session sweeper.
func NewApp(ctx context.Context, cfg AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{}

	sources, err := app.buildSources(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	selector, err := buildSelector(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	storeOpts := []statex.MemoryStoreOption{statex.WithMaxMessages(cfg.MaxMessages)}
	redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("load upstash redis config: %w", err)
	}
	if redisCfg.Enabled() {
		persister, err := statex.NewUpstashRedisPersister(*redisCfg, statex.WithTTL(cfg.SessionMaxAge))
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		storeOpts = append(storeOpts, statex.WithPersister(persister))
		log.Info().Msg("conversation persistence enabled")
	}
	app.Store = statex.NewMemoryStore(storeOpts...)

	o, err := orchestrator.New(
		app.Store,
		toolx.NewDefaultRegistry(sources),
		snapshotx.NewBuilder(sources, cfg.Context),
		selector,
		cfg.Orchestrator,
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Orchestrator = o

	sweepCtx, stop := context.WithCancel(context.Background())
	app.stop = stop
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.Store.Run(sweepCtx, cfg.SweepInterval, cfg.SessionMaxAge)
	}()

	log.Info().
		Str("source", cfg.Source).
		Str("selector", cfg.Selector).
		Int("tools", len(o.ListTools())).
		Msg("copilot ready")
	return app, nil
}

func (a *App) buildSources(cfg AppConfig) (contractx.Sources, error) {
	var sources contractx.Sources

	switch strings.ToLower(cfg.Source) {
	case sourcePostgres:
		pg, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return sources, err
		}
		a.closers = append(a.closers, pg.Close)
		sources.Inventory, sources.Orders, sources.Production = pg, pg, pg
	default:
		sources = fixture.New().Sources()
	}

	if cfg.Forecast.Enabled() {
		client, err := forecast.NewClient(cfg.Forecast)
		if err != nil {
			return sources, err
		}
		sources.Forecast = client
	}

	if strings.TrimSpace(cfg.Alert.Destination) != "" {
		qcfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return sources, fmt.Errorf("load qstash config: %w", err)
		}
		client, err := qstashx.NewClient(*qcfg)
		if err != nil {
			return sources, err
		}
		dispatcher, err := alert.NewDispatcher(client, cfg.Alert)
		if err != nil {
			return sources, err
		}
		sources.Alerts = dispatcher
	}
	return sources, nil
}

func buildSelector(ctx context.Context, cfg AppConfig) (contractx.SelectionStrategy, error) {
	rules, err := selectionx.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	keyword := selectionx.NewKeywordStrategy(rules)
	if !strings.EqualFold(cfg.Selector, selectorModel) {
		return keyword, nil
	}

	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, fmt.Errorf("load openrouter config: %w", err)
	}
	if err := llmCfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := llmCfg.ForSelector()
	model, err := modelCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	strategy, err := selectionx.NewModelStrategy(model, keyword)
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

// Close stops the sweeper and releases the data sources.
func (a *App) Close() error {
	if a.stop != nil {
		a.stop()
		a.wg.Wait()
	}
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
