package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	dataspace "github.com/goliatone/go-dataspace"
	"github.com/goliatone/go-dataspace/adapters/gocommand"
	"github.com/goliatone/go-dataspace/adapters/gologger"
	"github.com/goliatone/go-dataspace/core"
	"github.com/goliatone/go-dataspace/narration"
	"github.com/goliatone/go-dataspace/security"
	sqlstore "github.com/goliatone/go-dataspace/store/sql"
	glog "github.com/goliatone/go-logger/glog"
)

// app is the wired process state shared by one command invocation.
type app struct {
	cfg          core.Config
	logger       glog.Logger
	runner       *dataspace.Runner
	facade       *dataspace.Facade
	ledger       *sqlstore.Ledger
	registration *gocommand.Registration
}

func loadConfig(ctx context.Context, opts *RootOptions) (core.Config, error) {
	env := core.NewEnvLoader()
	if opts.Env != nil {
		env.Lookup = opts.Env
	}
	runtime := core.Config{Concurrency: opts.Concurrency}
	return dataspace.LoadConfig(ctx, runtime, core.NewYAMLFileLoader(opts.ConfigPath), env)
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := gologger.NewSlogLogger(opts.Stderr, opts.LogFormat, opts.LogLevel)
	a := &app{cfg: cfg, logger: logger}

	setupOpts := []dataspace.Option{
		dataspace.WithLoggerProvider(gologger.NewSlogProvider(logger)),
		dataspace.WithNotifier(newNotifier(opts, logger)),
	}
	if cfg.Ledger.Enabled {
		ledger, err := openLedger(ctx, cfg.Ledger)
		if err != nil {
			return nil, err
		}
		a.ledger = ledger
		setupOpts = append(setupOpts, dataspace.WithLedger(ledger))
	}

	a.runner, err = dataspace.Setup(cfg, setupOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.facade, err = dataspace.NewFacade(a.runner)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.registration, err = gocommand.RegisterFacade(gocommand.NewRegistryAdapter(gocmd.NewRegistry()), a.facade)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	return a, nil
}

func newNotifier(opts *RootOptions, logger glog.Logger) core.Notifier {
	consoleOpts := []narration.ConsoleOption{narration.WithFields(opts.Fields)}
	if opts.NoColor || opts.Format == "json" {
		consoleOpts = append(consoleOpts, narration.WithoutColor())
	}
	out := opts.Stdout
	if opts.Format == "json" {
		out = opts.Stderr
	}
	return narration.Multi{narration.NewConsole(out, consoleOpts...), narration.NewLogger(logger)}
}

func openLedger(ctx context.Context, cfg core.LedgerConfig) (*sqlstore.Ledger, error) {
	var secrets core.SecretProvider
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		sealer, err := security.NewTokenSealerFromString(key)
		if err != nil {
			return nil, fmt.Errorf("ledger secret: %w", err)
		}
		secrets = sealer
	}
	ledger, err := sqlstore.Open(ctx, cfg, secrets)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return ledger, nil
}

// requireLedger fails for commands that only read persisted history.
func (a *app) requireLedger() error {
	if a.ledger == nil {
		return errors.New("ledger is disabled: set ledger.enabled or LEDGER_ENABLED")
	}
	return nil
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	a.registration.Unsubscribe()
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}

func withApp(ctx context.Context, opts *RootOptions, fn func(*app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Warn("close failed", "error", closeErr)
		}
	}()
	return fn(a)
}
