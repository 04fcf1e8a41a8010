package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cookbook/internal/config"
	"cookbook/internal/core/store"
	"cookbook/internal/domain/cookbook"
	"cookbook/internal/infrastructure/audit"
	"cookbook/internal/infrastructure/storage"
	"cookbook/internal/metrics"
	"cookbook/internal/session"
	"cookbook/pkg/logger"
)

type options struct {
	configPath string
	provider   string
	connection string
	dsn        string
	debug      bool
	logSQL     bool
}

// overrides turns the flags given on the command line into config keys.
func (o *options) overrides(cmd *cobra.Command) map[string]any {
	flags := cmd.Flags()
	out := make(map[string]any)
	if flags.Changed("provider") {
		out["database.provider"] = o.provider
	}
	if flags.Changed("connection") {
		out["database.connection"] = o.connection
	}
	if flags.Changed("dsn") {
		out["connectionstrings.commandline"] = o.dsn
		out["database.connection"] = "CommandLine"
	}
	if o.debug {
		out["logging.level"] = "debug"
		out["logging.development"] = true
	}
	if o.logSQL {
		out["logging.logstatements"] = true
	}
	return out
}

// app holds what every demo needs. It lives for one command.
type app struct {
	out     io.Writer
	cfg     *config.Config
	log     *logger.Logger
	backend store.Backend
	factory *session.Factory
	journal *audit.Journal
	metrics *prometheus.Registry
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) setup(ctx context.Context, opts *options, overrides map[string]any) error {
	cfg, err := config.Load(opts.configPath, overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = log

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.backend = backend

	if err := cookbook.EnsureSchema(ctx, backend); err != nil {
		return err
	}

	var hooks []session.SaveHook
	if cfg.Journal.Enabled {
		if err := audit.EnsureSchema(ctx, backend); err != nil {
			return err
		}
		j, err := audit.NewJournal(
			audit.WithCompressThreshold(cfg.Journal.CompressThreshold),
			audit.WithLogger(log),
		)
		if err != nil {
			return err
		}
		a.journal = j
		hooks = append(hooks, j)
	}

	a.metrics = prometheus.NewRegistry()
	collector, err := metrics.New(a.metrics)
	if err != nil {
		return err
	}

	registry, err := cookbook.NewRegistry()
	if err != nil {
		return err
	}

	a.factory, err = session.NewFactory(session.Config{
		Registry:      registry,
		Backend:       backend,
		Logger:        log,
		Metrics:       collector,
		Hooks:         hooks,
		LogStatements: cfg.Logging.LogStatements,
	})
	if err != nil {
		return err
	}

	log.Debugw("cookbook ready",
		"provider", cfg.Database.Provider,
		"connection", cfg.Database.Connection,
		"journal", cfg.Journal.Enabled,
	)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return errors.Join(errs...)
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "cookbook",
		Short:         "Walk through change tracking and persistence on a cookbook database",
		SilenceUsage:  true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to appsettings.json (default ./appsettings.json)")
	flags.StringVar(&opts.provider, "provider", config.ProviderSQLite, "Database provider: sqlite or postgres")
	flags.StringVar(&opts.connection, "connection", "DefaultConnection", "Name of the connection string to use")
	flags.StringVar(&opts.dsn, "dsn", "", "Connection string, overrides --connection")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	flags.BoolVar(&opts.logSQL, "log-sql", false, "Log every generated statement")

	run := func(fns ...demo) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			a := &app{out: cmd.OutOrStdout()}
			defer func() { err = errors.Join(err, a.close()) }()

			if err := a.setup(ctx, opts, opts.overrides(cmd)); err != nil {
				return err
			}
			for _, d := range fns {
				a.printf("== %s\n", d.name)
				if err := d.run(ctx, a); err != nil {
					return fmt.Errorf("%s: %w", d.name, err)
				}
			}
			return nil
		}
	}

	for _, d := range demos {
		root.AddCommand(&cobra.Command{
			Use:   d.name,
			Short: d.short,
			Args:  cobra.NoArgs,
			RunE:  run(d),
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run every demo in order",
		Args:  cobra.NoArgs,
		RunE:  run(demos...),
	})

	return root
}
