package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dataspace/core"
)

var (
	_ gocmd.Commander[RunAllMessage]            = (*RunAllCommand)(nil)
	_ gocmd.Commander[RunTransactionMessage]    = (*RunTransactionCommand)(nil)
	_ gocmd.Commander[EnsurePublicationMessage] = (*EnsurePublicationCommand)(nil)
	_ gocmd.Commander[RunProbesMessage]         = (*RunProbesCommand)(nil)
	_ TransactionService                        = (*core.Runner)(nil)
)
