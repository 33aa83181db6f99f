package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// TransactionRecord is the persisted outcome of one consumer saga. Token is
// plaintext here; stores seal it at rest.
type TransactionRecord struct {
	ID                string
	RunID             string
	ConsumerID        string
	ProviderID        string
	AssetID           string
	NegotiationID     string
	AgreementID       string
	TransferProcessID string
	InternalEndpoint  string
	Endpoint          string
	Token             string
	TokenFingerprint  string
	Status            TransactionStatus
	FailedStage       Stage
	Error             string
	PayloadShape      string
	StartedAt         time.Time
	FinishedAt        time.Time
}

// ProbeTarget returns the identifiers the reuse probes replay.
func (r TransactionRecord) ProbeTarget() (ProbeTarget, error) {
	if r.Status != TransactionStatusSucceeded {
		return ProbeTarget{}, badInputError(fmt.Sprintf("core: transaction %s did not succeed", r.ID))
	}
	target := ProbeTarget{
		ConsumerID:        r.ConsumerID,
		ProviderID:        r.ProviderID,
		AgreementID:       r.AgreementID,
		TransferProcessID: r.TransferProcessID,
		Endpoint:          r.Endpoint,
		Token:             r.Token,
	}
	return target, target.Validate()
}

type TransactionFilter struct {
	RunID      string
	ConsumerID string
	Status     TransactionStatus
	Page       int
	PerPage    int
}

type TransactionPage struct {
	Items   []TransactionRecord
	Page    int
	PerPage int
	Total   int
}

type SaveProbeReportsInput struct {
	RunID    string
	ProberID string
	VictimID string
	Reports  []ProbeReport
}

type ProbeReportRecord struct {
	ID          string
	RunID       string
	ProberID    string
	VictimID    string
	Name        string
	Expectation ProbeExpectation
	Outcome     ProbeOutcome
	StatusCode  int
	Detail      string
	CreatedAt   time.Time
}

type ProbeReportFilter struct {
	RunID    string
	VictimID string
}

func newTransactionRecord(
	runID string,
	consumerID string,
	result TransactionResult,
	err error,
	startedAt time.Time,
	finishedAt time.Time,
) TransactionRecord {
	record := TransactionRecord{
		RunID:      runID,
		ConsumerID: consumerID,
		Status:     TransactionStatusSucceeded,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
	}
	if err != nil {
		record.Status = TransactionStatusFailed
		record.FailedStage = FailedStage(err)
		record.Error = err.Error()
		return record
	}
	record.ProviderID = result.Catalog().ProviderID()
	record.AssetID = result.Catalog().AssetID()
	record.NegotiationID = result.Negotiation().NegotiationID()
	record.AgreementID = result.Negotiation().AgreementID()
	record.TransferProcessID = result.Transfer().TransferProcessID()
	record.InternalEndpoint = result.Credential().InternalEndpoint()
	record.Endpoint = result.Credential().ExternalEndpoint()
	record.Token = result.Credential().Token()
	record.TokenFingerprint = result.Credential().TokenFingerprint()
	record.PayloadShape = DescribePayload(result.Payload())
	return record
}

// MemoryLedger keeps records in process. It backs the runner when no
// database is configured and doubles as a test fake.
type MemoryLedger struct {
	mu           sync.RWMutex
	transactions []TransactionRecord
	probes       []ProbeReportRecord
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: func() time.Time { return time.Now().UTC() }}
}

func (l *MemoryLedger) SaveTransaction(_ context.Context, record TransactionRecord) (TransactionRecord, error) {
	if l == nil {
		return TransactionRecord{}, fmt.Errorf("core: memory ledger is nil")
	}
	if strings.TrimSpace(record.ConsumerID) == "" {
		return TransactionRecord{}, badInputError("core: transaction record requires a consumer id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	l.transactions = append(l.transactions, record)
	return record, nil
}

func (l *MemoryLedger) LatestSuccessful(_ context.Context, consumerID string) (TransactionRecord, error) {
	if l == nil {
		return TransactionRecord{}, fmt.Errorf("core: memory ledger is nil")
	}
	consumerID = strings.TrimSpace(consumerID)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.transactions) - 1; i >= 0; i-- {
		record := l.transactions[i]
		if record.ConsumerID == consumerID && record.Status == TransactionStatusSucceeded {
			return record, nil
		}
	}
	return TransactionRecord{}, fmt.Errorf("core: no successful transaction found for consumer %q", consumerID)
}

func (l *MemoryLedger) GetTransaction(_ context.Context, id string) (TransactionRecord, error) {
	if l == nil {
		return TransactionRecord{}, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, record := range l.transactions {
		if record.ID == strings.TrimSpace(id) {
			return record, nil
		}
	}
	return TransactionRecord{}, fmt.Errorf("core: transaction %q not found", id)
}

func (l *MemoryLedger) ListTransactions(_ context.Context, filter TransactionFilter) (TransactionPage, error) {
	if l == nil {
		return TransactionPage{}, fmt.Errorf("core: memory ledger is nil")
	}
	page, perPage := NormalizePage(filter.Page, filter.PerPage)
	l.mu.RLock()
	matched := make([]TransactionRecord, 0, len(l.transactions))
	for _, record := range l.transactions {
		if filter.RunID != "" && record.RunID != filter.RunID {
			continue
		}
		if filter.ConsumerID != "" && record.ConsumerID != filter.ConsumerID {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		matched = append(matched, record)
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	total := len(matched)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	return TransactionPage{Items: matched[start:end], Page: page, PerPage: perPage, Total: total}, nil
}

func (l *MemoryLedger) SaveProbeReports(_ context.Context, in SaveProbeReportsInput) ([]ProbeReportRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ProbeReportRecord, 0, len(in.Reports))
	for _, report := range in.Reports {
		record := newProbeReportRecord(in, report, l.now())
		record.ID = uuid.NewString()
		l.probes = append(l.probes, record)
		out = append(out, record)
	}
	return out, nil
}

func (l *MemoryLedger) ListProbeReports(_ context.Context, filter ProbeReportFilter) ([]ProbeReportRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("core: memory ledger is nil")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ProbeReportRecord, 0, len(l.probes))
	for _, record := range l.probes {
		if filter.RunID != "" && record.RunID != filter.RunID {
			continue
		}
		if filter.VictimID != "" && record.VictimID != filter.VictimID {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func newProbeReportRecord(in SaveProbeReportsInput, report ProbeReport, createdAt time.Time) ProbeReportRecord {
	return ProbeReportRecord{
		RunID:       strings.TrimSpace(in.RunID),
		ProberID:    strings.TrimSpace(in.ProberID),
		VictimID:    strings.TrimSpace(in.VictimID),
		Name:        report.Name,
		Expectation: report.Expectation,
		Outcome:     report.Outcome,
		StatusCode:  report.StatusCode,
		Detail:      report.Detail,
		CreatedAt:   createdAt,
	}
}

// NewProbeReportRecords flattens a probe run into storable records.
func NewProbeReportRecords(in SaveProbeReportsInput, createdAt time.Time) []ProbeReportRecord {
	out := make([]ProbeReportRecord, 0, len(in.Reports))
	for _, report := range in.Reports {
		out = append(out, newProbeReportRecord(in, report, createdAt.UTC()))
	}
	return out
}

// NormalizePage applies the default and maximum page sizes used by the ledger.
func NormalizePage(page int, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 25
	}
	if perPage > 200 {
		perPage = 200
	}
	return page, perPage
}

var (
	_ TransactionLedger = (*MemoryLedger)(nil)
	_ TransactionReader = (*MemoryLedger)(nil)
	_ ProbeReportReader = (*MemoryLedger)(nil)
)
