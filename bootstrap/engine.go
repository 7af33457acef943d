package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/recipeflow/action"
	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/orchestrator"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/provider/ollama"
	"github.com/kbukum/recipeflow/provider/openai"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/redis"
	"github.com/kbukum/recipeflow/storage"
	"github.com/kbukum/recipeflow/store"

	// Register storage backends with storage.New.
	_ "github.com/kbukum/recipeflow/storage/local"
	_ "github.com/kbukum/recipeflow/storage/s3"
)

// Engine holds every wired component of a running recipe engine.
type Engine struct {
	Name    string
	Version string
	Cfg     *Config
	Logger  *logger.Logger
	Metrics *observability.Metrics
	Summary *Summary

	Store        store.Store
	Storage      storage.Storage
	Providers    *provider.Registry
	Resolver     *capability.Resolver
	Dispatcher   *action.Dispatcher
	Orchestrator *orchestrator.Orchestrator

	gracefulTimeout time.Duration
	onStop          []Hook
}

// New applies defaults, validates cfg and builds the engine. Components
// that hold connections are registered for Shutdown; if construction fails
// halfway, the ones already built are shut down before returning.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Engine, error) {
	start := time.Now()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	o := resolveOptions(opts)

	e := &Engine{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		Summary:         NewSummary(cfg.Name, cfg.Version),
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		e.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		e.Logger = o.logger
	} else {
		e.Logger = logger.New(&cfg.Logging, cfg.Name)
		logger.SetGlobalLogger(e.Logger)
	}

	if err := e.build(ctx, o); err != nil {
		_ = runHooks(context.WithoutCancel(ctx), e.onStop)
		return nil, err
	}

	e.Summary.SetStartupDuration(time.Since(start))
	e.Logger.Info("engine ready", map[string]interface{}{
		"name":        e.Name,
		"version":     e.Version,
		"store":       e.Summary.store,
		"storage":     e.Summary.storage,
		"providers":   e.Providers.List(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return e, nil
}

func (e *Engine) build(ctx context.Context, o *engineOptions) error {
	cfg := e.Cfg

	shutdown, err := observability.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	e.OnStop(Hook(shutdown))
	if e.Metrics, err = observability.NewMetrics(observability.Meter()); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	e.Summary.telemetry = cfg.Telemetry.Enabled

	if err := e.buildStore(ctx, o); err != nil {
		return err
	}

	if o.storage != nil {
		e.Storage = o.storage
		e.Summary.storage = "custom"
	} else {
		if e.Storage, err = storage.New(cfg.Storage, e.Logger); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		e.Summary.storage = cfg.Storage.Provider
	}

	e.Providers = provider.NewRegistry(
		provider.WithTracing(),
		provider.WithMetrics(e.Metrics),
		provider.WithLogging(e.Logger),
		provider.WithResilience(cfg.Providers.Resilience),
	)
	e.Providers.RegisterFactory(ollama.ProviderName, ollama.Factory())
	e.Providers.Configure(ollama.ProviderName, cfg.Providers.Ollama.ToMap())
	if cfg.Providers.OpenAI.APIKey != "" {
		e.Providers.RegisterFactory(openai.ProviderName, openai.Factory())
		e.Providers.Configure(openai.ProviderName, cfg.Providers.OpenAI.ToMap())
	}
	for name, p := range o.providers {
		e.Providers.Set(name, p)
	}

	globals, err := cfg.GlobalDefaults()
	if err != nil {
		return err
	}
	e.Resolver = capability.NewResolver(e.Store,
		capability.WithGlobalDefaults(globals),
		capability.WithLogger(e.Logger),
	)
	e.Summary.capabilities = globals

	dispatchOpts := []action.Option{
		action.WithStorage(e.Storage),
		action.WithLogger(e.Logger),
		action.WithMetrics(e.Metrics),
	}
	if cfg.Engine.NodeTimeout > 0 {
		dispatchOpts = append(dispatchOpts, action.WithTimeout(cfg.Engine.NodeTimeout))
	}
	if cfg.Engine.StrictInputs {
		dispatchOpts = append(dispatchOpts, action.WithRenderer(action.TemplateRenderer{Strict: true}))
	}
	e.Dispatcher = action.NewDispatcher(dispatchOpts...)

	e.Orchestrator = orchestrator.New(e.Store, e.Resolver, e.Providers,
		orchestrator.WithConfig(cfg.Engine.Config),
		orchestrator.WithDispatcher(e.Dispatcher),
		orchestrator.WithLogger(e.Logger),
		orchestrator.WithMetrics(e.Metrics),
	)

	n, err := e.LoadRecipes(ctx, cfg.RecipeDirs...)
	if err != nil {
		return err
	}
	e.Summary.recipes = n
	return nil
}

func (e *Engine) buildStore(ctx context.Context, o *engineOptions) error {
	if o.store != nil {
		e.Store = o.store
		e.Summary.store = "custom"
		return nil
	}

	switch e.Cfg.Store.Driver {
	case StoreRedis:
		client, err := redis.New(e.Cfg.Store.Redis, e.Logger)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		e.OnStop(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		e.Store = redis.NewStore(client, redis.StoreConfig{ExecutionTTL: e.Cfg.Store.ExecutionTTL})
	default:
		e.Store = store.NewMemoryStore()
	}
	e.Summary.store = e.Cfg.Store.Driver
	return nil
}

// LoadRecipes parses every recipe file in dirs and saves it to the store.
// Recipes are stored as parsed; validation happens when they run.
func (e *Engine) LoadRecipes(ctx context.Context, dirs ...string) (int, error) {
	if len(dirs) == 0 {
		return 0, nil
	}
	recipes, err := recipe.NewFileLoader(dirs...).LoadAll()
	if err != nil {
		return 0, err
	}
	for _, r := range recipes {
		if err := e.Store.SaveRecipe(ctx, r); err != nil {
			return 0, fmt.Errorf("saving recipe %s: %w", r.ID, err)
		}
	}
	e.Logger.Debug("recipes loaded", map[string]interface{}{
		"count": len(recipes),
		"dirs":  dirs,
	})
	return len(recipes), nil
}

// RunTask runs a finite task and shuts the engine down afterwards. SIGINT
// and SIGTERM cancel the task context, which cancels a running execution.
func (e *Engine) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			e.Logger.Info("received signal, cancelling task", map[string]interface{}{
				"signal": sig.String(),
			})
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), e.gracefulTimeout)
	defer stop()
	if stopErr := e.Shutdown(stopCtx); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// Shutdown runs the stop hooks, closing connections and flushing
// telemetry. It is safe to call more than once.
func (e *Engine) Shutdown(ctx context.Context) error {
	hooks := e.onStop
	e.onStop = nil
	if len(hooks) == 0 {
		return nil
	}
	err := runHooks(ctx, hooks)
	if err != nil {
		e.Logger.Error("shutdown completed with errors", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return err
	}
	e.Logger.Info("engine shut down")
	return nil
}
