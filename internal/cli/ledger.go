package cli

import (
	"github.com/goliatone/go-dataspace/adapters/gocommand"
	"github.com/goliatone/go-dataspace/core"
	dataspacequery "github.com/goliatone/go-dataspace/query"
	"github.com/spf13/cobra"
)

func newLedgerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded transactions and probe reports",
	}
	cmd.AddCommand(newLedgerListCommand(opts))
	cmd.AddCommand(newLedgerShowCommand(opts))
	cmd.AddCommand(newLedgerProbesCommand(opts))
	return cmd
}

func newLedgerListCommand(opts *RootOptions) *cobra.Command {
	filter := core.TransactionFilter{}
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.requireLedger(); err != nil {
					return err
				}
				filter.Status = core.TransactionStatus(status)
				page, err := gocommand.Query[dataspacequery.ListTransactionsMessage, core.TransactionPage](
					cmd.Context(), dataspacequery.ListTransactionsMessage{Filter: filter})
				if err != nil {
					return err
				}
				view := pageView{Page: page.Page, PerPage: page.PerPage, Total: page.Total}
				for _, record := range page.Items {
					view.Items = append(view.Items, newTransactionView(record))
				}
				return newPrinter(opts).page(view)
			})
		},
	}
	cmd.Flags().StringVar(&filter.RunID, "run", "", "filter by run id")
	cmd.Flags().StringVar(&filter.ConsumerID, "consumer", "", "filter by consumer id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (succeeded|failed)")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filter.PerPage, "per-page", 20, "page size")
	return cmd
}

func newLedgerShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.requireLedger(); err != nil {
					return err
				}
				record, err := gocommand.Query[dataspacequery.GetTransactionMessage, core.TransactionRecord](
					cmd.Context(), dataspacequery.GetTransactionMessage{ID: args[0]})
				if err != nil {
					return err
				}
				return newPrinter(opts).transaction(newTransactionView(record))
			})
		},
	}
}

func newLedgerProbesCommand(opts *RootOptions) *cobra.Command {
	filter := core.ProbeReportFilter{}
	cmd := &cobra.Command{
		Use:   "probes",
		Short: "List recorded probe reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.requireLedger(); err != nil {
					return err
				}
				records, err := gocommand.Query[dataspacequery.ListProbeReportsMessage, []core.ProbeReportRecord](
					cmd.Context(), dataspacequery.ListProbeReportsMessage{Filter: filter})
				if err != nil {
					return err
				}
				views := make([]probeView, 0, len(records))
				for _, record := range records {
					views = append(views, newProbeRecordView(record))
				}
				return newPrinter(opts).probes(filter.RunID, views)
			})
		},
	}
	cmd.Flags().StringVar(&filter.RunID, "run", "", "filter by run id")
	cmd.Flags().StringVar(&filter.VictimID, "victim", "", "filter by victim consumer id")
	return cmd
}
