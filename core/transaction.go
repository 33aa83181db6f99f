package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	ProtocolDataspaceHTTP = "dataspace-protocol-http"
	TransferTypeHTTPPull  = "HttpData-PULL"
	EDCNamespace          = "https://w3id.org/edc/v0.0.1/ns/"
	ODRLNamespace         = "http://www.w3.org/ns/odrl/2/"
)

// Counterpart is the provider as seen from a consumer.
type Counterpart struct {
	ID              string
	ProtocolAddress string
	PublicEndpoint  EndpointRewriter
}

type AccessConfig struct {
	AuthHeaderMode AuthHeaderMode
	Adapter        TransportAdapter
	Timeout        time.Duration
}

type TransactionConfig struct {
	ConsumerID    string
	Management    ManagementAPI
	Counterpart   Counterpart
	Access        AccessConfig
	Poll          PollOptions
	TransferShape TransferRequestShape
}

type TransactionOption func(*Transaction)

func WithNotifier(notifier Notifier) TransactionOption {
	return func(t *Transaction) {
		if notifier != nil {
			t.notifier = notifier
		}
	}
}

func WithMetrics(metrics MetricsRecorder) TransactionOption {
	return func(t *Transaction) {
		if metrics != nil {
			t.metrics = metrics
		}
	}
}

func WithTransactionLogger(logger Logger) TransactionOption {
	return func(t *Transaction) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transaction drives one consumer through catalog, negotiation, transfer,
// credential retrieval and access. Stages run strictly in order and each
// consumes the typed result of the previous one.
type Transaction struct {
	consumerID    string
	management    ManagementAPI
	counterpart   Counterpart
	access        AccessConfig
	poll          PollOptions
	transferShape TransferRequestShape
	notifier      Notifier
	metrics       MetricsRecorder
	logger        Logger
}

func NewTransaction(cfg TransactionConfig, opts ...TransactionOption) (*Transaction, error) {
	if strings.TrimSpace(cfg.ConsumerID) == "" {
		return nil, badInputError("core: transaction requires a consumer id")
	}
	if cfg.Management == nil {
		return nil, badInputError("core: transaction requires a management api")
	}
	if strings.TrimSpace(cfg.Counterpart.ID) == "" {
		return nil, badInputError("core: transaction requires a counterpart id")
	}
	if strings.TrimSpace(cfg.Counterpart.ProtocolAddress) == "" {
		return nil, badInputError("core: transaction requires a counterpart protocol address")
	}
	shape := cfg.TransferShape
	if shape == "" {
		shape = TransferRequestShapeMinimal
	}
	if cfg.Access.AuthHeaderMode == "" {
		cfg.Access.AuthHeaderMode = AuthHeaderModeRaw
	}

	t := &Transaction{
		consumerID:    strings.TrimSpace(cfg.ConsumerID),
		management:    cfg.Management,
		counterpart:   cfg.Counterpart,
		access:        cfg.Access,
		poll:          cfg.Poll,
		transferShape: shape,
		notifier:      NopNotifier{},
		metrics:       NopMetricsRecorder{},
		logger:        glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(t)
	}
	t.logger = glog.Ensure(t.logger)
	return t, nil
}

func (t *Transaction) ConsumerID() string {
	if t == nil {
		return ""
	}
	return t.consumerID
}

// Run executes all five stages and stops at the first failure. The returned
// error is a *StageError wrapping the typed cause.
func (t *Transaction) Run(ctx context.Context) (TransactionResult, error) {
	if t == nil {
		return TransactionResult{}, badInputError("core: transaction is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	catalog, err := t.FetchCatalog(ctx)
	if err != nil {
		return TransactionResult{}, err
	}
	negotiation, err := t.Negotiate(ctx, catalog)
	if err != nil {
		return TransactionResult{}, err
	}
	transfer, err := t.StartTransfer(ctx, catalog, negotiation)
	if err != nil {
		return TransactionResult{}, err
	}
	credential, err := t.FetchCredential(ctx, transfer)
	if err != nil {
		return TransactionResult{}, err
	}
	payload, err := t.Access(ctx, credential)
	if err != nil {
		return TransactionResult{}, err
	}
	return NewTransactionResult(catalog, negotiation, transfer, credential, payload)
}

func (t *Transaction) observe(ctx context.Context, stage Stage, startedAt time.Time, err error, fields map[string]any) error {
	recordStageMetrics(ctx, t.metrics, stage, t.consumerID, startedAt, err)
	return observeStage(ctx, t.logger, stage, startedAt, err, fields)
}

func (t *Transaction) narrator() narrator {
	return narrator{notifier: t.notifier, scope: t.consumerID}
}

func (t *Transaction) fields(extra map[string]any) map[string]any {
	fields := cloneFields(extra)
	fields["consumer_id"] = t.consumerID
	fields["provider_id"] = t.counterpart.ID
	return fields
}

// pollOptions attaches attempt logging to the configured poll budget.
func (t *Transaction) pollOptions(ctx context.Context, stage Stage) PollOptions {
	options := t.poll
	next := options.OnAttempt
	options.OnAttempt = func(attempt PollAttempt) {
		fields := t.fields(map[string]any{
			"stage":        string(stage),
			"attempt":      attempt.Attempt,
			"max_attempts": attempt.MaxAttempts,
			"ready":        attempt.Ready,
			"url":          attempt.Target.URL,
		})
		if attempt.Err != nil {
			fields["error"] = attempt.Err.Error()
		}
		logWithLevel(ctx, t.logger, "debug", "poll attempt", fields)
		if next != nil {
			next(attempt)
		}
	}
	return options
}

func (t *Transaction) getter(path string) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return t.management.JSON(ctx, http.MethodGet, path, nil)
	}
}

func (t *Transaction) postDocument(ctx context.Context, stage Stage, path string, document Document) (Document, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("core: encode request for %s: %w", path, err)
	}
	created, err := t.management.Raw(ctx, http.MethodPost, path, raw)
	if err != nil {
		return nil, err
	}
	doc, ok := asDocument(created)
	if !ok {
		return nil, newShapeError(stage, ReasonMalformedResponse, created)
	}
	return doc, nil
}
