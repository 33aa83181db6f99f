package query

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-dataspace/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestGetTransactionQuery_StripsToken(t *testing.T) {
	ledger := core.NewMemoryLedger()
	saved, err := ledger.SaveTransaction(context.Background(), core.TransactionRecord{
		ConsumerID:       "consumer-1",
		AgreementID:      "agr-1",
		Token:            "tok-1",
		TokenFingerprint: core.TokenFingerprint("tok-1"),
		Status:           core.TransactionStatusSucceeded,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	record, err := NewGetTransactionQuery(ledger).Query(context.Background(), GetTransactionMessage{ID: saved.ID})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if record.AgreementID != "agr-1" {
		t.Fatalf("unexpected record %#v", record)
	}
	if record.Token != "" || record.TokenFingerprint != core.TokenFingerprint("tok-1") {
		t.Fatalf("expected token stripped and fingerprint kept, got %q %q", record.Token, record.TokenFingerprint)
	}
}

func TestListTransactionsQuery_FiltersAndStripsTokens(t *testing.T) {
	ledger := core.NewMemoryLedger()
	base := time.Unix(100, 0)
	for i, consumer := range []string{"consumer-1", "consumer-2", "consumer-1"} {
		if _, err := ledger.SaveTransaction(context.Background(), core.TransactionRecord{
			ConsumerID: consumer,
			Token:      "tok",
			Status:     core.TransactionStatusSucceeded,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	page, err := NewListTransactionsQuery(ledger).Query(context.Background(), ListTransactionsMessage{
		Filter: core.TransactionFilter{ConsumerID: "consumer-1"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 consumer-1 records, got %d", page.Total)
	}
	for _, item := range page.Items {
		if item.Token != "" {
			t.Fatalf("expected listing without tokens")
		}
	}
}

func TestListProbeReportsQuery_Delegates(t *testing.T) {
	ledger := core.NewMemoryLedger()
	if _, err := ledger.SaveProbeReports(context.Background(), core.SaveProbeReportsInput{
		RunID:    "run-1",
		ProberID: "consumer-3",
		VictimID: "consumer-1",
		Reports:  []core.ProbeReport{{Name: "credential lookup", Outcome: core.ProbeOutcomeExpectedFailure, StatusCode: 404}},
	}); err != nil {
		t.Fatalf("save probes: %v", err)
	}
	reports, err := NewListProbeReportsQuery(ledger).Query(context.Background(), ListProbeReportsMessage{
		Filter: core.ProbeReportFilter{RunID: "run-1"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(reports) != 1 || reports[0].StatusCode != 404 {
		t.Fatalf("unexpected reports %#v", reports)
	}
}

func TestGetTransactionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetTransactionMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %q %d", rich.TextCode, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "id" {
		t.Fatalf("expected id validation field, got %#v", validation)
	}
}

func TestListTransactionsMessage_ValidateRejectsUnknownStatus(t *testing.T) {
	if err := (ListTransactionsMessage{Filter: core.TransactionFilter{Status: "pending"}}).Validate(); err == nil {
		t.Fatalf("expected status validation error")
	}
	if err := (ListTransactionsMessage{Filter: core.TransactionFilter{PerPage: -1}}).Validate(); err == nil {
		t.Fatalf("expected per_page validation error")
	}
	if err := (ListTransactionsMessage{Filter: core.TransactionFilter{Status: core.TransactionStatusFailed}}).Validate(); err != nil {
		t.Fatalf("expected failed status to be accepted: %v", err)
	}
}

func TestGetTransactionQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetTransactionQuery
	_, err := q.Query(context.Background(), GetTransactionMessage{ID: "x"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected internal envelope, got %q %q", rich.Category, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d code, got %d", http.StatusInternalServerError, rich.Code)
	}
}
