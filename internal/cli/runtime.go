package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/hive/internal/config"
	"github.com/harun/hive/internal/logger"
	"github.com/harun/hive/internal/observability"
	"github.com/harun/hive/internal/tracing"
	"github.com/harun/hive/pkg/agent"
	"github.com/harun/hive/pkg/catalog"
	"github.com/harun/hive/pkg/gateway"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newProvider builds the completion provider. Tests replace it.
var newProvider = agent.NewProvider

// runtime holds what a command needs to run agents
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	logger  zerolog.Logger
	catalog *catalog.Catalog
	runner  *agent.Runner
	closers []func()
}

// loadConfig reads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newRuntime wires logging, tracing, the catalog and, when withRunner is set,
// the provider and runner. Log output goes to the command's stderr.
func newRuntime(cmd *cobra.Command, withRunner bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if withRunner {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		log:     log,
		logger:  log.Zerolog(),
		closers: []func(){func() { _ = log.Close() }},
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = observability.GetAuditLogger().Close() })
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to initialise tracing: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.ShutdownOpenTelemetry(ctx)
		})
	}
	observability.EnsureRegistered()

	rt.catalog, err = loadCatalog(cfg, log.Component("catalog"))
	if err != nil {
		rt.Close()
		return nil, err
	}

	if withRunner {
		provider, err := newProvider(cfg.Provider)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.runner, err = agent.NewRunner(agent.Config{
			Provider:          provider,
			Logger:            log.Component("agent"),
			ValidateArguments: cfg.Run.ValidateArguments,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

func catalogOptions(cfg *config.Config, log zerolog.Logger) catalog.Options {
	opts := catalog.Options{
		DefaultModel: cfg.Model,
		Logger:       log,
	}
	if cfg.CatalogPath != "" {
		opts.Registry = catalog.NewDemoRegistry()
	}
	return opts
}

func loadCatalog(cfg *config.Config, log zerolog.Logger) (*catalog.Catalog, error) {
	opts := catalogOptions(cfg, log)
	if cfg.CatalogPath == "" {
		return catalog.Demo(opts)
	}
	c, err := catalog.Load(cfg.CatalogPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.CatalogPath, err)
	}
	return c, nil
}

// watchCatalog serves the configured catalog file and reloads it on change.
// The built-in catalog has no file and is served as loaded.
func (rt *runtime) watchCatalog() (gateway.AgentSource, error) {
	if rt.cfg.CatalogPath == "" {
		return rt.catalog, nil
	}
	live := catalog.NewLive(rt.catalog, rt.cfg.CatalogPath, catalogOptions(rt.cfg, rt.log.Component("catalog")))
	if err := live.Watch(); err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = live.Close() })
	return live, nil
}

// runOptions converts the run section of the config
func (rt *runtime) runOptions() []agent.RunOption {
	return []agent.RunOption{
		agent.WithMaxTurns(rt.cfg.Run.MaxTurns),
		agent.WithExecuteTools(rt.cfg.Run.ExecuteTools),
		agent.WithDebug(rt.cfg.Run.Debug),
	}
}

// Close releases everything in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
