package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dataspace/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// TransactionRunner is the part of core.Runner the worker drives.
type TransactionRunner interface {
	RunConsumer(ctx context.Context, runID string, consumerID string) (core.TransactionOutcome, error)
	RunProbes(ctx context.Context, runID string, victimID string) (core.ProbeRun, error)
}

type WorkerConfig struct {
	Runner   TransactionRunner
	Dequeuer core.JobDequeuer
	Hook     core.JobWorkerHook
	Logger   glog.Logger
	// RetryDelay is the nack delay for retryable failures.
	RetryDelay time.Duration
}

// TransactionWorker pulls dataspace jobs and runs them one at a time.
type TransactionWorker struct {
	runner     TransactionRunner
	dequeuer   core.JobDequeuer
	hook       core.JobWorkerHook
	logger     glog.Logger
	retryDelay time.Duration
	now        func() time.Time
}

func NewTransactionWorker(cfg WorkerConfig) (*TransactionWorker, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("gojob: transaction runner is required")
	}
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	hook := cfg.Hook
	if hook == nil {
		hook = NewLoggingHook(cfg.Logger)
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &TransactionWorker{
		runner:     cfg.Runner,
		dequeuer:   cfg.Dequeuer,
		hook:       hook,
		logger:     glog.Ensure(cfg.Logger),
		retryDelay: retryDelay,
		now:        time.Now,
	}, nil
}

// ProcessNext handles one delivery. Bad input is dead-lettered; every other
// failure is requeued under the delivery's retry policy.
func (w *TransactionWorker) ProcessNext(ctx context.Context, attempt int) error {
	if w == nil {
		return fmt.Errorf("gojob: transaction worker is nil")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	event := core.JobWorkerEvent{Message: delivery.Message(), Attempt: attempt, StartedAt: w.now()}
	w.hook.OnStart(ctx, event)

	runErr := w.Handle(ctx, event.Message)
	event.Duration = w.now().Sub(event.StartedAt)
	event.Err = runErr
	if runErr == nil {
		w.hook.OnSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	opts := core.JobNackOptions{Delay: w.retryDelay, Requeue: true, Reason: runErr.Error()}
	if mapped := core.MapError(runErr); mapped != nil && mapped.Category == goerrors.CategoryBadInput {
		opts = core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()}
	}
	if opts.Requeue {
		event.Delay = opts.Delay
		w.hook.OnRetry(ctx, event)
	} else {
		w.hook.OnFailure(ctx, event)
	}

	var nackErr error
	if bounded, ok := delivery.(interface {
		NackForAttempt(context.Context, core.JobNackOptions, int) error
	}); ok {
		nackErr = bounded.NackForAttempt(ctx, opts, attempt)
	} else {
		nackErr = delivery.Nack(ctx, opts)
	}
	if nackErr != nil {
		return fmt.Errorf("gojob: nack after %v: %w", runErr, nackErr)
	}
	return runErr
}

// Handle runs the saga or probe named by msg.
func (w *TransactionWorker) Handle(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return goerrors.New("gojob: execution message is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	runID := stringParam(msg.Parameters, ParamRunID)
	switch msg.JobID {
	case JobIDConsumerTransaction:
		_, err := w.runner.RunConsumer(ctx, runID, stringParam(msg.Parameters, ParamConsumerID))
		return err
	case JobIDReuseProbe:
		_, err := w.runner.RunProbes(ctx, runID, stringParam(msg.Parameters, ParamVictimID))
		return err
	default:
		return goerrors.New(fmt.Sprintf("gojob: unsupported job %q", msg.JobID), goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.WithContext(ctx).Debug("job started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.WithContext(ctx).Info("job succeeded", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.WithContext(ctx).Error("job failed", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.WithContext(ctx).Warn("job scheduled for retry", eventArgs(event)...)
}

func eventArgs(event core.JobWorkerEvent) []any {
	args := []any{"attempt", event.Attempt}
	if event.Message != nil {
		args = append(args, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Duration > 0 {
		args = append(args, "duration", event.Duration.String())
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var (
	_ TransactionRunner  = (*core.Runner)(nil)
	_ core.JobWorkerHook = (*LoggingHook)(nil)
)
