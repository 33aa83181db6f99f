package query

import (
	"strings"

	"github.com/goliatone/go-dataspace/core"
)

const (
	TypeGetTransaction   = "dataspace.query.transaction.get"
	TypeListTransactions = "dataspace.query.transaction.list"
	TypeListProbeReports = "dataspace.query.probe_report.list"
)

type GetTransactionMessage struct {
	ID string
}

func (GetTransactionMessage) Type() string { return TypeGetTransaction }

func (m GetTransactionMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "transaction id is required")
	}
	return nil
}

type ListTransactionsMessage struct {
	Filter core.TransactionFilter
}

func (ListTransactionsMessage) Type() string { return TypeListTransactions }

func (m ListTransactionsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	switch m.Filter.Status {
	case "", core.TransactionStatusSucceeded, core.TransactionStatusFailed:
	default:
		return queryValidationError("status", "status must be succeeded or failed")
	}
	return nil
}

type ListProbeReportsMessage struct {
	Filter core.ProbeReportFilter
}

func (ListProbeReportsMessage) Type() string { return TypeListProbeReports }
