// Package dataspace wires the transaction runner, its commands and queries
// from a single configuration.
package dataspace

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-dataspace/core"
	"github.com/goliatone/go-dataspace/management"
	"github.com/goliatone/go-dataspace/transport"
	glog "github.com/goliatone/go-logger/glog"
)

type Config = core.Config
type Runner = core.Runner
type RunReport = core.RunReport
type TransactionOutcome = core.TransactionOutcome
type ProbeRun = core.ProbeRun
type Notifier = core.Notifier
type TransactionLedger = core.TransactionLedger

type Option func(*setupOptions)

type setupOptions struct {
	loggerProvider glog.LoggerProvider
	logger         glog.Logger
	notifier       core.Notifier
	ledger         core.TransactionLedger
	metrics        core.MetricsRecorder
	doer           transport.HTTPDoer
	poll           core.PollOptions
}

func WithLogger(logger glog.Logger) Option {
	return func(o *setupOptions) { o.logger = logger }
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *setupOptions) { o.loggerProvider = provider }
}

func WithNotifier(notifier core.Notifier) Option {
	return func(o *setupOptions) { o.notifier = notifier }
}

func WithLedger(ledger core.TransactionLedger) Option {
	return func(o *setupOptions) { o.ledger = ledger }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *setupOptions) { o.metrics = metrics }
}

// WithHTTPDoer replaces the HTTP client shared by management and data plane
// calls.
func WithHTTPDoer(doer transport.HTTPDoer) Option {
	return func(o *setupOptions) { o.doer = doer }
}

func WithPollOptions(poll core.PollOptions) Option {
	return func(o *setupOptions) { o.poll = poll }
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig layers defaults, the given raw loaders and runtime overrides.
func LoadConfig(ctx context.Context, runtime Config, loaders ...core.RawConfigLoader) (Config, error) {
	return core.LoadConfig(ctx, core.NewCfgxConfigProvider(core.MergedConfigLoader(loaders)), core.GoOptionsResolver{}, runtime)
}

// Setup builds a runner whose management clients and data plane pulls share
// one rate-limited HTTP transport.
func Setup(cfg Config, opts ...Option) (*Runner, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	_, logger := glog.Resolve("dataspace", options.loggerProvider, options.logger)

	doer := options.doer
	if doer == nil {
		doer = &http.Client{Timeout: cfg.HTTP.Timeout}
	}
	doer = transport.NewRateLimitedDoer(doer, cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)
	adapter := transport.NewRESTAdapter(doer, transport.WithMaxResponseBodyBytes(cfg.HTTP.MaxResponseBodyBytes))

	runner, err := core.NewRunner(core.RunnerConfig{
		Config:     cfg,
		Management: management.NewFactory(cfg.APIKey, adapter, cfg.HTTP.Timeout, cfg.HTTP.MaxResponseBodyBytes, logger),
		Access:     adapter,
		Ledger:     options.ledger,
		Notifier:   options.notifier,
		Metrics:    options.metrics,
		Logger:     logger,
		Poll:       options.poll,
	})
	if err != nil {
		return nil, fmt.Errorf("dataspace: setup runner: %w", err)
	}
	return runner, nil
}
