package query

import (
	"context"

	"github.com/goliatone/go-dataspace/core"
)

// Transaction reads never return the credential token; the fingerprint is
// kept for traceability.

type GetTransactionQuery struct {
	reader core.TransactionReader
}

func NewGetTransactionQuery(reader core.TransactionReader) *GetTransactionQuery {
	return &GetTransactionQuery{reader: reader}
}

func (q *GetTransactionQuery) Query(ctx context.Context, msg GetTransactionMessage) (core.TransactionRecord, error) {
	if q == nil || q.reader == nil {
		return core.TransactionRecord{}, queryDependencyError("query: transaction reader is required")
	}
	record, err := q.reader.GetTransaction(ctx, msg.ID)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	return withoutToken(record), nil
}

type ListTransactionsQuery struct {
	reader core.TransactionReader
}

func NewListTransactionsQuery(reader core.TransactionReader) *ListTransactionsQuery {
	return &ListTransactionsQuery{reader: reader}
}

func (q *ListTransactionsQuery) Query(ctx context.Context, msg ListTransactionsMessage) (core.TransactionPage, error) {
	if q == nil || q.reader == nil {
		return core.TransactionPage{}, queryDependencyError("query: transaction reader is required")
	}
	page, err := q.reader.ListTransactions(ctx, msg.Filter)
	if err != nil {
		return core.TransactionPage{}, err
	}
	items := make([]core.TransactionRecord, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, withoutToken(item))
	}
	page.Items = items
	return page, nil
}

type ListProbeReportsQuery struct {
	reader core.ProbeReportReader
}

func NewListProbeReportsQuery(reader core.ProbeReportReader) *ListProbeReportsQuery {
	return &ListProbeReportsQuery{reader: reader}
}

func (q *ListProbeReportsQuery) Query(ctx context.Context, msg ListProbeReportsMessage) ([]core.ProbeReportRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: probe report reader is required")
	}
	return q.reader.ListProbeReports(ctx, msg.Filter)
}

func withoutToken(record core.TransactionRecord) core.TransactionRecord {
	if record.Token != "" && record.TokenFingerprint == "" {
		record.TokenFingerprint = core.TokenFingerprint(record.Token)
	}
	record.Token = ""
	return record
}
