package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-dataspace/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const transactionCacheKeyPrefix = "go-dataspace::transactions::v1"

type cacheBackedLedger interface {
	core.TransactionLedger
	core.TransactionReader
	core.ProbeReportReader
}

// CachedTransactionStore fronts a ledger with read-through caching for
// single-record and listing reads. Writes invalidate the keys they touch.
type CachedTransactionStore struct {
	base  cacheBackedLedger
	cache repositorycache.CacheService
}

func NewCachedTransactionStore(base cacheBackedLedger, cacheService repositorycache.CacheService) (*CachedTransactionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base transaction store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: transaction cache service is required")
	}
	return &CachedTransactionStore{base: base, cache: cacheService}, nil
}

// TransactionCacheKey returns go-dataspace::transactions::v1::<kind>::<segments...>
// with each segment URL-path escaped.
func TransactionCacheKey(kind string, segments ...string) string {
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, transactionCacheKeyPrefix, url.PathEscape(strings.TrimSpace(kind)))
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(parts, "::")
}

func (s *CachedTransactionStore) SaveTransaction(ctx context.Context, record core.TransactionRecord) (core.TransactionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	saved, err := s.base.SaveTransaction(ctx, record)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	if err := s.cache.Delete(ctx, TransactionCacheKey("latest", saved.ConsumerID)); err != nil {
		return saved, err
	}
	return saved, nil
}

func (s *CachedTransactionStore) LatestSuccessful(ctx context.Context, consumerID string) (core.TransactionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	key := TransactionCacheKey("latest", consumerID)
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.TransactionRecord, error) {
		return s.base.LatestSuccessful(ctx, consumerID)
	})
}

func (s *CachedTransactionStore) GetTransaction(ctx context.Context, id string) (core.TransactionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TransactionRecord{}, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	key := TransactionCacheKey("id", id)
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.TransactionRecord, error) {
		return s.base.GetTransaction(ctx, id)
	})
}

// ListTransactions is not cached; pages shift with every write.
func (s *CachedTransactionStore) ListTransactions(ctx context.Context, filter core.TransactionFilter) (core.TransactionPage, error) {
	if s == nil || s.base == nil {
		return core.TransactionPage{}, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	return s.base.ListTransactions(ctx, filter)
}

func (s *CachedTransactionStore) SaveProbeReports(ctx context.Context, in core.SaveProbeReportsInput) ([]core.ProbeReportRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	records, err := s.base.SaveProbeReports(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{
		TransactionCacheKey("probes", in.RunID, in.VictimID),
		TransactionCacheKey("probes", in.RunID, ""),
		TransactionCacheKey("probes", "", in.VictimID),
		TransactionCacheKey("probes", "", ""),
	} {
		if err := s.cache.Delete(ctx, key); err != nil {
			return records, err
		}
	}
	return records, nil
}

func (s *CachedTransactionStore) ListProbeReports(ctx context.Context, filter core.ProbeReportFilter) ([]core.ProbeReportRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	key := TransactionCacheKey("probes", filter.RunID, filter.VictimID)
	records, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) ([]core.ProbeReportRecord, error) {
		return s.base.ListProbeReports(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return append([]core.ProbeReportRecord(nil), records...), nil
}
