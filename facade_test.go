package dataspace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	dataspacecommand "github.com/goliatone/go-dataspace/command"
	"github.com/goliatone/go-dataspace/core"
	dataspacequery "github.com/goliatone/go-dataspace/query"
)

func newFailingManagementServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`[{"message":"boom"}]`))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func testConfig(managementURL string) Config {
	cfg := DefaultConfig()
	cfg.Provider.ManagementURL = managementURL
	cfg.Consumers = []core.PartyConfig{{ID: "consumer-1", ManagementURL: managementURL}}
	cfg.Prober = core.PartyConfig{}
	return cfg
}

func TestSetup_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consumers = nil
	runner, err := Setup(cfg)
	if err == nil {
		t.Fatalf("expected invalid config error")
	}
	if runner != nil {
		t.Fatalf("expected nil runner on error")
	}
}

func TestSetup_DefaultsToMemoryLedger(t *testing.T) {
	server, _ := newFailingManagementServer(t)
	runner, err := Setup(testConfig(server.URL))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, ok := runner.Ledger().(*core.MemoryLedger); !ok {
		t.Fatalf("expected memory ledger, got %T", runner.Ledger())
	}
}

func TestFacade_RunTransactionRecordsFailureAndQueriesIt(t *testing.T) {
	server, hits := newFailingManagementServer(t)
	runner, err := Setup(testConfig(server.URL), WithHTTPDoer(server.Client()))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	facade, err := NewFacade(runner)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	err = facade.Commands().RunTransaction.Execute(context.Background(), dataspacecommand.RunTransactionMessage{
		RunID:      "run-1",
		ConsumerID: "consumer-1",
	})
	if err == nil {
		t.Fatalf("expected catalog failure")
	}
	if stage := core.FailedStage(err); stage != core.StageCatalog {
		t.Fatalf("expected catalog stage, got %q", stage)
	}
	if atomic.LoadInt32(hits) == 0 {
		t.Fatalf("expected the management server to be called")
	}

	page, err := facade.Queries().ListTransactions.Query(context.Background(), dataspacequery.ListTransactionsMessage{
		Filter: core.TransactionFilter{RunID: "run-1", Page: 1, PerPage: 10},
	})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one recorded transaction, got %#v", page)
	}
	record := page.Items[0]
	if record.Status != core.TransactionStatusFailed || record.FailedStage != core.StageCatalog {
		t.Fatalf("unexpected record %#v", record)
	}

	got, err := facade.Queries().GetTransaction.Query(context.Background(), dataspacequery.GetTransactionMessage{ID: record.ID})
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.ConsumerID != "consumer-1" || got.Token != "" {
		t.Fatalf("unexpected transaction %#v", got)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

func TestNewFacade_ReaderOptionsOverrideLedger(t *testing.T) {
	ledger := core.NewMemoryLedger()
	if _, err := ledger.SaveTransaction(context.Background(), core.TransactionRecord{
		ID:         "11111111-1111-1111-1111-111111111111",
		RunID:      "run-x",
		ConsumerID: "consumer-9",
		Status:     core.TransactionStatusSucceeded,
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	facade, err := NewFacade(stubService{}, WithTransactionReader(ledger), WithProbeReportReader(ledger))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	page, err := facade.Queries().ListTransactions.Query(context.Background(), dataspacequery.ListTransactionsMessage{
		Filter: core.TransactionFilter{ConsumerID: "consumer-9"},
	})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected the override reader to be queried, got %#v", page)
	}
	if facade.Commands().RunAll == nil || facade.Commands().RunProbes == nil {
		t.Fatalf("expected command handlers to be wired")
	}
}

type stubService struct{}

func (stubService) Run(context.Context) (core.RunReport, error) {
	return core.RunReport{}, nil
}

func (stubService) RunConsumer(context.Context, string, string) (core.TransactionOutcome, error) {
	return core.TransactionOutcome{}, nil
}

func (stubService) EnsurePublication(context.Context, core.PublicationConfig) error {
	return nil
}

func (stubService) RunProbes(context.Context, string, string) (core.ProbeRun, error) {
	return core.ProbeRun{}, nil
}
