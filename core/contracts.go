package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// ManagementAPI is one party's connector management endpoint. Non-2xx
// responses are returned as *TransportError.
type ManagementAPI interface {
	Party() string
	BaseURL() string
	URL(path string) string
	JSON(ctx context.Context, method string, path string, body any) (any, error)
	Raw(ctx context.Context, method string, path string, raw []byte) (any, error)
}

// ManagementFactory builds the management client for a configured party.
type ManagementFactory func(party PartyConfig) (ManagementAPI, error)

type Channel string

const (
	ChannelProvider  Channel = "provider"
	ChannelConsumer  Channel = "consumer"
	ChannelConnector Channel = "edc"
	ChannelWarn      Channel = "warn"
	ChannelError     Channel = "error"
)

// Narration is a human-facing progress line, separate from structured logs.
type Narration struct {
	Channel Channel
	Scope   string
	Message string
	Fields  map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, narration Narration)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Narration) {}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type TransactionLedger interface {
	SaveTransaction(ctx context.Context, record TransactionRecord) (TransactionRecord, error)
	LatestSuccessful(ctx context.Context, consumerID string) (TransactionRecord, error)
	SaveProbeReports(ctx context.Context, in SaveProbeReportsInput) ([]ProbeReportRecord, error)
}

type TransactionReader interface {
	GetTransaction(ctx context.Context, id string) (TransactionRecord, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error)
}

type ProbeReportReader interface {
	ListProbeReports(ctx context.Context, filter ProbeReportFilter) ([]ProbeReportRecord, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
