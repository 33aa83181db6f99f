package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dataspace/core"
)

// TransactionService is the mutating surface of core.Runner.
type TransactionService interface {
	Run(ctx context.Context) (core.RunReport, error)
	RunConsumer(ctx context.Context, runID string, consumerID string) (core.TransactionOutcome, error)
	EnsurePublication(ctx context.Context, publication core.PublicationConfig) error
	RunProbes(ctx context.Context, runID string, victimID string) (core.ProbeRun, error)
}

type RunAllCommand struct {
	service TransactionService
}

func NewRunAllCommand(service TransactionService) *RunAllCommand {
	return &RunAllCommand{service: service}
}

// Execute stores the report even when some sagas failed.
func (c *RunAllCommand) Execute(ctx context.Context, _ RunAllMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	report, err := c.service.Run(ctx)
	storeResult(ctx, report)
	return err
}

type RunTransactionCommand struct {
	service TransactionService
}

func NewRunTransactionCommand(service TransactionService) *RunTransactionCommand {
	return &RunTransactionCommand{service: service}
}

func (c *RunTransactionCommand) Execute(ctx context.Context, msg RunTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	out, err := c.service.RunConsumer(ctx, msg.RunID, msg.ConsumerID)
	storeResult(ctx, out)
	return err
}

type EnsurePublicationCommand struct {
	service TransactionService
}

func NewEnsurePublicationCommand(service TransactionService) *EnsurePublicationCommand {
	return &EnsurePublicationCommand{service: service}
}

func (c *EnsurePublicationCommand) Execute(ctx context.Context, msg EnsurePublicationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	return c.service.EnsurePublication(ctx, msg.Publication)
}

type RunProbesCommand struct {
	service TransactionService
}

func NewRunProbesCommand(service TransactionService) *RunProbesCommand {
	return &RunProbesCommand{service: service}
}

func (c *RunProbesCommand) Execute(ctx context.Context, msg RunProbesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	out, err := c.service.RunProbes(ctx, msg.RunID, msg.VictimID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
