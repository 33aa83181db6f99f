package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dataspace/adapters/gocommand"
	dataspacecommand "github.com/goliatone/go-dataspace/command"
	"github.com/goliatone/go-dataspace/core"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	*RootOptions
	RunID       string
	Consumers   []string
	ProbeVictim string
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish the assets and run every consumer transaction",
		Long: `Ensure each configured publication exists on the provider, then run the
catalog, negotiation, transfer, credential and access stages for each
consumer. Consumers run concurrently and fail independently.

Example:
  dataspace run
  dataspace run --consumer consumer-1 --probe consumer-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts.RootOptions, func(a *app) error {
				return runTransactions(cmd.Context(), a, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id recorded in the ledger (generated when empty)")
	cmd.Flags().StringSliceVar(&opts.Consumers, "consumer", nil, "run only these consumers (repeatable)")
	cmd.Flags().StringVar(&opts.ProbeVictim, "probe", "", "after the run, replay this consumer's credentials from the prober")
	return cmd
}

func runTransactions(ctx context.Context, a *app, opts *runOptions) error {
	report, runErr := dispatchRun(ctx, a, opts)
	views := make([]transactionView, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		view := newTransactionView(outcome.Record)
		if view.ConsumerID == "" {
			view.ConsumerID = outcome.ConsumerID
		}
		views = append(views, view)
	}
	p := newPrinter(opts.RootOptions)
	if err := p.transactions(report.RunID, views); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if opts.ProbeVictim == "" {
		return nil
	}
	return runProbes(ctx, a, opts.RootOptions, report.RunID, opts.ProbeVictim)
}

func dispatchRun(ctx context.Context, a *app, opts *runOptions) (core.RunReport, error) {
	if len(opts.Consumers) == 0 {
		collector := gocmd.NewResult[core.RunReport]()
		err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), dataspacecommand.RunAllMessage{})
		report, _ := collector.Load()
		return report, err
	}

	for _, publication := range a.cfg.Publications {
		if err := gocommand.Dispatch(ctx, dataspacecommand.EnsurePublicationMessage{Publication: publication}); err != nil {
			return core.RunReport{}, err
		}
	}
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	report := core.RunReport{RunID: runID}
	errs := make([]error, 0, len(opts.Consumers))
	for _, consumerID := range opts.Consumers {
		collector := gocmd.NewResult[core.TransactionOutcome]()
		err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), dataspacecommand.RunTransactionMessage{
			RunID:      runID,
			ConsumerID: consumerID,
		})
		outcome, ok := collector.Load()
		if !ok {
			outcome = core.TransactionOutcome{RunID: runID, ConsumerID: consumerID, Err: err}
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", consumerID, err))
		}
	}
	return report, errors.Join(errs...)
}
