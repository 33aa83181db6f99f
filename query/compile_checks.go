package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dataspace/core"
)

var (
	_ gocmd.Querier[GetTransactionMessage, core.TransactionRecord]     = (*GetTransactionQuery)(nil)
	_ gocmd.Querier[ListTransactionsMessage, core.TransactionPage]     = (*ListTransactionsQuery)(nil)
	_ gocmd.Querier[ListProbeReportsMessage, []core.ProbeReportRecord] = (*ListProbeReportsQuery)(nil)
)
