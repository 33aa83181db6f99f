package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type RunnerConfig struct {
	Config     Config
	Management ManagementFactory
	// Access executes data plane pulls and the source preview.
	Access   TransportAdapter
	Ledger   TransactionLedger
	Notifier Notifier
	Metrics  MetricsRecorder
	Logger   Logger
	// Poll overrides, field by field, the poll budget derived from Config.
	Poll PollOptions
}

type TransactionOutcome struct {
	RunID      string
	ConsumerID string
	Result     TransactionResult
	Record     TransactionRecord
	Err        error
}

type RunReport struct {
	RunID    string
	Outcomes []TransactionOutcome
}

// Succeeded reports whether every saga of the run completed.
func (r RunReport) Succeeded() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

type ProbeRun struct {
	RunID    string
	ProberID string
	VictimID string
	Reports  []ProbeReport
	Records  []ProbeReportRecord
}

// Runner drives provider setup and the consumer sagas for one configuration.
type Runner struct {
	cfg        Config
	management ManagementFactory
	access     TransportAdapter
	ledger     TransactionLedger
	notifier   Notifier
	metrics    MetricsRecorder
	logger     Logger
	poll       PollOptions
	newID      func() string
	now        func() time.Time

	mu      sync.RWMutex
	results map[string]TransactionResult
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Management == nil {
		return nil, badInputError("core: runner requires a management factory")
	}
	if cfg.Access == nil {
		return nil, badInputError("core: runner requires an access transport")
	}
	r := &Runner{
		cfg:        cfg.Config,
		management: cfg.Management,
		access:     cfg.Access,
		ledger:     cfg.Ledger,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     glog.Ensure(cfg.Logger),
		poll:       cfg.Config.PollOptions(),
		newID:      uuid.NewString,
		now:        time.Now,
		results:    map[string]TransactionResult{},
	}
	if r.ledger == nil {
		r.ledger = NewMemoryLedger()
	}
	if r.notifier == nil {
		r.notifier = NopNotifier{}
	}
	r.poll = r.poll.merged(cfg.Poll)
	return r, nil
}

func (r *Runner) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

// Ledger returns the ledger sagas and probe runs are recorded in.
func (r *Runner) Ledger() TransactionLedger {
	if r == nil {
		return nil
	}
	return r.ledger
}

// Run publishes every configured asset and then runs each consumer saga.
// Sagas are independent: one failure does not cancel the others.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	if r == nil {
		return RunReport{}, badInputError("core: runner is nil")
	}
	report := RunReport{RunID: r.newID()}
	if err := r.SetupProvider(ctx); err != nil {
		return report, err
	}

	report.Outcomes = make([]TransactionOutcome, len(r.cfg.Consumers))
	group := errgroup.Group{}
	if r.cfg.Concurrency > 0 {
		group.SetLimit(r.cfg.Concurrency)
	}
	for idx, consumer := range r.cfg.Consumers {
		group.Go(func() error {
			outcome := r.runConsumer(ctx, report.RunID, consumer)
			report.Outcomes[idx] = outcome
			return outcome.Err
		})
	}
	_ = group.Wait()

	errs := make([]error, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", outcome.ConsumerID, outcome.Err))
		}
	}
	return report, errors.Join(errs...)
}

// SetupProvider ensures every publication and previews the raw source.
func (r *Runner) SetupProvider(ctx context.Context) error {
	if r == nil {
		return badInputError("core: runner is nil")
	}
	setup, err := r.providerSetup()
	if err != nil {
		return &StageError{Stage: StageProviderSetup, Err: err}
	}
	for _, publication := range r.cfg.Publications {
		if err := setup.Ensure(ctx, publication); err != nil {
			return err
		}
	}
	setup.PreviewSource(ctx, r.cfg.SourcePreviewURL)
	return nil
}

func (r *Runner) EnsurePublication(ctx context.Context, publication PublicationConfig) error {
	if r == nil {
		return badInputError("core: runner is nil")
	}
	setup, err := r.providerSetup()
	if err != nil {
		return &StageError{Stage: StageProviderSetup, Err: err}
	}
	return setup.Ensure(ctx, publication)
}

// RunConsumer runs one saga for a configured consumer and records it.
func (r *Runner) RunConsumer(ctx context.Context, runID string, consumerID string) (TransactionOutcome, error) {
	if r == nil {
		return TransactionOutcome{}, badInputError("core: runner is nil")
	}
	party, ok := r.cfg.Consumer(consumerID)
	if !ok {
		return TransactionOutcome{}, badInputError(fmt.Sprintf("core: unknown consumer %q", consumerID))
	}
	if strings.TrimSpace(runID) == "" {
		runID = r.newID()
	}
	outcome := r.runConsumer(ctx, runID, party)
	return outcome, outcome.Err
}

func (r *Runner) runConsumer(ctx context.Context, runID string, party PartyConfig) TransactionOutcome {
	outcome := TransactionOutcome{RunID: runID, ConsumerID: party.ID}
	startedAt := r.now()
	transaction, err := r.transaction(party)
	if err == nil {
		outcome.Result, err = transaction.Run(ctx)
	}
	outcome.Err = err

	record := newTransactionRecord(runID, party.ID, outcome.Result, err, startedAt, r.now())
	saved, saveErr := r.ledger.SaveTransaction(ctx, record)
	if saveErr != nil {
		logWithLevel(ctx, r.logger, "error", "ledger write failed", map[string]any{
			"run_id":      runID,
			"consumer_id": party.ID,
			"error":       saveErr.Error(),
		})
		saved = record
	}
	outcome.Record = saved
	if err == nil {
		r.mu.Lock()
		r.results[party.ID] = outcome.Result
		r.mu.Unlock()
	}
	return outcome
}

// RunProbes replays victimID's latest successful transaction from the
// configured prober and records the reports.
func (r *Runner) RunProbes(ctx context.Context, runID string, victimID string) (ProbeRun, error) {
	if r == nil {
		return ProbeRun{}, badInputError("core: runner is nil")
	}
	if strings.TrimSpace(r.cfg.Prober.ID) == "" {
		return ProbeRun{}, badInputError("core: no prober configured")
	}
	if strings.TrimSpace(runID) == "" {
		runID = r.newID()
	}
	target, err := r.probeTarget(ctx, victimID)
	if err != nil {
		return ProbeRun{}, err
	}
	prober, err := r.transaction(r.cfg.Prober)
	if err != nil {
		return ProbeRun{}, err
	}

	run := ProbeRun{RunID: runID, ProberID: r.cfg.Prober.ID, VictimID: victimID}
	run.Reports = prober.RunReuseProbes(ctx, target)
	run.Records, err = r.ledger.SaveProbeReports(ctx, SaveProbeReportsInput{
		RunID:    runID,
		ProberID: run.ProberID,
		VictimID: victimID,
		Reports:  run.Reports,
	})
	if err != nil {
		return run, err
	}
	return run, nil
}

func (r *Runner) probeTarget(ctx context.Context, victimID string) (ProbeTarget, error) {
	r.mu.RLock()
	result, ok := r.results[victimID]
	r.mu.RUnlock()
	if ok {
		return ProbeTargetFromResult(victimID, result), nil
	}
	record, err := r.ledger.LatestSuccessful(ctx, victimID)
	if err != nil {
		return ProbeTarget{}, err
	}
	return record.ProbeTarget()
}

func (r *Runner) transaction(party PartyConfig) (*Transaction, error) {
	management, err := r.management(party)
	if err != nil {
		return nil, err
	}
	return NewTransaction(TransactionConfig{
		ConsumerID:  party.ID,
		Management:  management,
		Counterpart: r.cfg.Counterpart(),
		Access: AccessConfig{
			AuthHeaderMode: r.cfg.AuthHeaderMode,
			Adapter:        r.access,
			Timeout:        r.cfg.HTTP.Timeout,
		},
		Poll:          r.poll,
		TransferShape: r.cfg.TransferRequestShape,
	}, WithNotifier(r.notifier), WithMetrics(r.metrics), WithTransactionLogger(r.logger))
}

func (r *Runner) providerSetup() (*ProviderSetup, error) {
	management, err := r.management(r.cfg.Provider.Party())
	if err != nil {
		return nil, err
	}
	return NewProviderSetup(ProviderSetupConfig{
		Management:     management,
		Preview:        r.access,
		PreviewTimeout: r.cfg.HTTP.Timeout,
	}, r.notifier, r.logger)
}
