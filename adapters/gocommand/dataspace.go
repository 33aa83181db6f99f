package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	dataspace "github.com/goliatone/go-dataspace"
	dataspacecommand "github.com/goliatone/go-dataspace/command"
	"github.com/goliatone/go-dataspace/core"
	dataspacequery "github.com/goliatone/go-dataspace/query"
)

// Registration holds the dispatcher subscriptions made for one facade.
type Registration struct {
	subscriptions []commanddispatcher.Subscription
}

func (r *Registration) Unsubscribe() {
	if r == nil {
		return
	}
	for _, subscription := range r.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

func (r *Registration) Len() int {
	if r == nil {
		return 0
	}
	return len(r.subscriptions)
}

// RegisterFacade registers every facade command and query and subscribes
// them to the global dispatcher. A failure rolls back prior subscriptions.
func RegisterFacade(adapter *RegistryAdapter, facade *dataspace.Facade, runnerOpts ...runner.Option) (*Registration, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	registration := &Registration{}
	track := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			registration.Unsubscribe()
			return err
		}
		registration.subscriptions = append(registration.subscriptions, subscription)
		return nil
	}

	commands := facade.Commands()
	if err := track(RegisterAndSubscribe[dataspacecommand.RunAllMessage](adapter, commands.RunAll, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe[dataspacecommand.RunTransactionMessage](adapter, commands.RunTransaction, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe[dataspacecommand.EnsurePublicationMessage](adapter, commands.EnsurePublication, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe[dataspacecommand.RunProbesMessage](adapter, commands.RunProbes, runnerOpts...)); err != nil {
		return nil, err
	}

	queries := facade.Queries()
	if err := track(RegisterAndSubscribeQuery[dataspacequery.GetTransactionMessage, core.TransactionRecord](adapter, queries.GetTransaction, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[dataspacequery.ListTransactionsMessage, core.TransactionPage](adapter, queries.ListTransactions, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[dataspacequery.ListProbeReportsMessage, []core.ProbeReportRecord](adapter, queries.ListProbeReports, runnerOpts...)); err != nil {
		return nil, err
	}
	return registration, nil
}
