package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dataspace/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type keyMetadataProvider interface {
	Metadata() (string, int)
}

// TransactionStore persists saga outcomes and probe reports. Tokens are
// sealed through the configured secret provider; without one only the
// fingerprint is written.
type TransactionStore struct {
	db        *bun.DB
	repo      repository.Repository[*transactionRecord]
	probeRepo repository.Repository[*probeReportRecord]
	secrets   core.SecretProvider
	now       func() time.Time
}

func NewTransactionStore(db *bun.DB, secrets core.SecretProvider) (*TransactionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*transactionRecord](db, transactionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid transaction repository wiring: %w", err)
		}
	}
	probeRepo := repository.NewRepository[*probeReportRecord](db, probeReportHandlers())
	if validator, ok := probeRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid probe report repository wiring: %w", err)
		}
	}
	return &TransactionStore{
		db:        db,
		repo:      repo,
		probeRepo: probeRepo,
		secrets:   secrets,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *TransactionStore) SaveTransaction(ctx context.Context, in core.TransactionRecord) (core.TransactionRecord, error) {
	if s == nil || s.repo == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	in.ConsumerID = strings.TrimSpace(in.ConsumerID)
	if in.ConsumerID == "" {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: consumer id is required")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if in.TokenFingerprint == "" && in.Token != "" {
		in.TokenFingerprint = core.TokenFingerprint(in.Token)
	}

	record := newTransactionRecord(in)
	if err := s.sealToken(ctx, record, in.Token); err != nil {
		return core.TransactionRecord{}, err
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.TransactionRecord{}, err
	}
	return in, nil
}

func (s *TransactionStore) LatestSuccessful(ctx context.Context, consumerID string) (core.TransactionRecord, error) {
	if s == nil || s.repo == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	consumerID = strings.TrimSpace(consumerID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("consumer_id", "=", consumerID),
		repository.SelectBy("status", "=", string(core.TransactionStatusSucceeded)),
		repository.OrderBy("finished_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	if len(records) == 0 {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: no successful transaction found for consumer %q", consumerID)
	}
	return s.openRecord(ctx, records[0])
}

func (s *TransactionStore) GetTransaction(ctx context.Context, id string) (core.TransactionRecord, error) {
	if s == nil || s.db == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &transactionRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TransactionRecord{}, fmt.Errorf("sqlstore: transaction %q not found", id)
		}
		return core.TransactionRecord{}, err
	}
	return s.openRecord(ctx, record)
}

func (s *TransactionStore) ListTransactions(ctx context.Context, filter core.TransactionFilter) (core.TransactionPage, error) {
	if s == nil || s.repo == nil {
		return core.TransactionPage{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	page, perPage := core.NormalizePage(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("started_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if runID := strings.TrimSpace(filter.RunID); runID != "" {
		selectors = append(selectors, repository.SelectBy("run_id", "=", runID))
	}
	if consumerID := strings.TrimSpace(filter.ConsumerID); consumerID != "" {
		selectors = append(selectors, repository.SelectBy("consumer_id", "=", consumerID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.TransactionPage{}, err
	}
	items := make([]core.TransactionRecord, 0, len(records))
	for _, record := range records {
		// Listings never carry tokens.
		items = append(items, record.toDomain())
	}
	return core.TransactionPage{Items: items, Page: page, PerPage: perPage, Total: total}, nil
}

// SaveProbeReports writes one probe run atomically.
func (s *TransactionStore) SaveProbeReports(ctx context.Context, in core.SaveProbeReportsInput) ([]core.ProbeReportRecord, error) {
	if s == nil || s.probeRepo == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	records := core.NewProbeReportRecords(in, s.now())
	out := make([]core.ProbeReportRecord, 0, len(records))
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for idx, record := range records {
			record.ID = uuid.NewString()
			if _, err := s.probeRepo.CreateTx(ctx, tx, newProbeReportRecord(record, idx)); err != nil {
				return err
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TransactionStore) ListProbeReports(ctx context.Context, filter core.ProbeReportFilter) ([]core.ProbeReportRecord, error) {
	if s == nil || s.probeRepo == nil {
		return nil, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("sequence ASC"),
	}
	if runID := strings.TrimSpace(filter.RunID); runID != "" {
		selectors = append(selectors, repository.SelectBy("run_id", "=", runID))
	}
	if victimID := strings.TrimSpace(filter.VictimID); victimID != "" {
		selectors = append(selectors, repository.SelectBy("victim_id", "=", victimID))
	}
	records, _, err := s.probeRepo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.ProbeReportRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *TransactionStore) sealToken(ctx context.Context, record *transactionRecord, token string) error {
	if token == "" || s.secrets == nil {
		return nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return fmt.Errorf("sqlstore: seal token: %w", err)
	}
	record.SealedToken = sealed
	if meta, ok := s.secrets.(keyMetadataProvider); ok {
		record.EncryptionKeyID, record.EncryptionVersion = meta.Metadata()
	}
	return nil
}

func (s *TransactionStore) openRecord(ctx context.Context, record *transactionRecord) (core.TransactionRecord, error) {
	out := record.toDomain()
	if len(record.SealedToken) == 0 || s.secrets == nil {
		return out, nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, record.SealedToken)
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: open token for transaction %s: %w", record.ID, err)
	}
	out.Token = string(plaintext)
	return out, nil
}
