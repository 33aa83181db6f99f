package sqlstore

import (
	"time"

	"github.com/goliatone/go-dataspace/core"
	"github.com/uptrace/bun"
)

type transactionRecord struct {
	bun.BaseModel `bun:"table:dataspace_transactions,alias:dt"`

	ID                string    `bun:"id,pk"`
	RunID             string    `bun:"run_id,notnull"`
	ConsumerID        string    `bun:"consumer_id,notnull"`
	ProviderID        string    `bun:"provider_id,notnull"`
	AssetID           string    `bun:"asset_id,notnull"`
	NegotiationID     string    `bun:"negotiation_id,notnull"`
	AgreementID       string    `bun:"agreement_id,notnull"`
	TransferProcessID string    `bun:"transfer_process_id,notnull"`
	InternalEndpoint  string    `bun:"internal_endpoint,notnull"`
	Endpoint          string    `bun:"endpoint,notnull"`
	SealedToken       []byte    `bun:"sealed_token"`
	TokenFingerprint  string    `bun:"token_fingerprint,notnull"`
	EncryptionKeyID   string    `bun:"encryption_key_id,notnull"`
	EncryptionVersion int       `bun:"encryption_version,notnull"`
	Status            string    `bun:"status,notnull"`
	FailedStage       string    `bun:"failed_stage,notnull"`
	Error             string    `bun:"error,notnull"`
	PayloadShape      string    `bun:"payload_shape,notnull"`
	StartedAt         time.Time `bun:"started_at,notnull"`
	FinishedAt        time.Time `bun:"finished_at,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type probeReportRecord struct {
	bun.BaseModel `bun:"table:dataspace_probe_reports,alias:dpr"`

	ID          string    `bun:"id,pk"`
	RunID       string    `bun:"run_id,notnull"`
	ProberID    string    `bun:"prober_id,notnull"`
	VictimID    string    `bun:"victim_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Expectation string    `bun:"expectation,notnull"`
	Outcome     string    `bun:"outcome,notnull"`
	StatusCode  int       `bun:"status_code,notnull"`
	Detail      string    `bun:"detail,notnull"`
	Sequence    int       `bun:"sequence,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// toDomain leaves Token empty; the store opens it separately.
func (r *transactionRecord) toDomain() core.TransactionRecord {
	if r == nil {
		return core.TransactionRecord{}
	}
	return core.TransactionRecord{
		ID:                r.ID,
		RunID:             r.RunID,
		ConsumerID:        r.ConsumerID,
		ProviderID:        r.ProviderID,
		AssetID:           r.AssetID,
		NegotiationID:     r.NegotiationID,
		AgreementID:       r.AgreementID,
		TransferProcessID: r.TransferProcessID,
		InternalEndpoint:  r.InternalEndpoint,
		Endpoint:          r.Endpoint,
		TokenFingerprint:  r.TokenFingerprint,
		Status:            core.TransactionStatus(r.Status),
		FailedStage:       core.Stage(r.FailedStage),
		Error:             r.Error,
		PayloadShape:      r.PayloadShape,
		StartedAt:         r.StartedAt.UTC(),
		FinishedAt:        r.FinishedAt.UTC(),
	}
}

func newTransactionRecord(in core.TransactionRecord) *transactionRecord {
	return &transactionRecord{
		ID:                in.ID,
		RunID:             in.RunID,
		ConsumerID:        in.ConsumerID,
		ProviderID:        in.ProviderID,
		AssetID:           in.AssetID,
		NegotiationID:     in.NegotiationID,
		AgreementID:       in.AgreementID,
		TransferProcessID: in.TransferProcessID,
		InternalEndpoint:  in.InternalEndpoint,
		Endpoint:          in.Endpoint,
		TokenFingerprint:  in.TokenFingerprint,
		Status:            string(in.Status),
		FailedStage:       string(in.FailedStage),
		Error:             in.Error,
		PayloadShape:      in.PayloadShape,
		StartedAt:         in.StartedAt.UTC(),
		FinishedAt:        in.FinishedAt.UTC(),
	}
}

func (r *probeReportRecord) toDomain() core.ProbeReportRecord {
	if r == nil {
		return core.ProbeReportRecord{}
	}
	return core.ProbeReportRecord{
		ID:          r.ID,
		RunID:       r.RunID,
		ProberID:    r.ProberID,
		VictimID:    r.VictimID,
		Name:        r.Name,
		Expectation: core.ProbeExpectation(r.Expectation),
		Outcome:     core.ProbeOutcome(r.Outcome),
		StatusCode:  r.StatusCode,
		Detail:      r.Detail,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func newProbeReportRecord(in core.ProbeReportRecord, sequence int) *probeReportRecord {
	return &probeReportRecord{
		ID:          in.ID,
		RunID:       in.RunID,
		ProberID:    in.ProberID,
		VictimID:    in.VictimID,
		Name:        in.Name,
		Expectation: string(in.Expectation),
		Outcome:     string(in.Outcome),
		StatusCode:  in.StatusCode,
		Detail:      in.Detail,
		Sequence:    sequence,
		CreatedAt:   in.CreatedAt.UTC(),
	}
}
