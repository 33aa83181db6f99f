package sqlstore

import "github.com/goliatone/go-dataspace/core"

var (
	_ core.TransactionLedger = (*TransactionStore)(nil)
	_ core.TransactionReader = (*TransactionStore)(nil)
	_ core.ProbeReportReader = (*TransactionStore)(nil)
	_ core.TransactionLedger = (*CachedTransactionStore)(nil)
	_ core.TransactionReader = (*CachedTransactionStore)(nil)
	_ core.ProbeReportReader = (*CachedTransactionStore)(nil)
	_ core.TransactionLedger = (*Ledger)(nil)
)
