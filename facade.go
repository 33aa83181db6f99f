package dataspace

import (
	"fmt"

	dataspacecommand "github.com/goliatone/go-dataspace/command"
	"github.com/goliatone/go-dataspace/core"
	dataspacequery "github.com/goliatone/go-dataspace/query"
)

type Commands struct {
	RunAll            *dataspacecommand.RunAllCommand
	RunTransaction    *dataspacecommand.RunTransactionCommand
	EnsurePublication *dataspacecommand.EnsurePublicationCommand
	RunProbes         *dataspacecommand.RunProbesCommand
}

type Queries struct {
	GetTransaction   *dataspacequery.GetTransactionQuery
	ListTransactions *dataspacequery.ListTransactionsQuery
	ListProbeReports *dataspacequery.ListProbeReportsQuery
}

type Facade struct {
	service  dataspacecommand.TransactionService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	transactions core.TransactionReader
	probes       core.ProbeReportReader
}

// WithTransactionReader overrides the reader resolved from the service ledger.
func WithTransactionReader(reader core.TransactionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.transactions = reader
	}
}

func WithProbeReportReader(reader core.ProbeReportReader) FacadeOption {
	return func(options *facadeOptions) {
		options.probes = reader
	}
}

func NewFacade(service dataspacecommand.TransactionService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("dataspace: transaction service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	ledger := resolveLedger(service)
	if cfg.transactions == nil {
		cfg.transactions, _ = ledger.(core.TransactionReader)
	}
	if cfg.probes == nil {
		cfg.probes, _ = ledger.(core.ProbeReportReader)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RunAll:            dataspacecommand.NewRunAllCommand(service),
		RunTransaction:    dataspacecommand.NewRunTransactionCommand(service),
		EnsurePublication: dataspacecommand.NewEnsurePublicationCommand(service),
		RunProbes:         dataspacecommand.NewRunProbesCommand(service),
	}
	facade.queries = Queries{
		GetTransaction:   dataspacequery.NewGetTransactionQuery(cfg.transactions),
		ListTransactions: dataspacequery.NewListTransactionsQuery(cfg.transactions),
		ListProbeReports: dataspacequery.NewListProbeReportsQuery(cfg.probes),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() dataspacecommand.TransactionService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveLedger(service dataspacecommand.TransactionService) core.TransactionLedger {
	provider, ok := service.(interface {
		Ledger() core.TransactionLedger
	})
	if !ok {
		return nil
	}
	return provider.Ledger()
}
