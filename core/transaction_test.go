package core_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-dataspace/core"
	"github.com/goliatone/go-dataspace/devkit"
	"github.com/goliatone/go-dataspace/management"
	"github.com/goliatone/go-dataspace/narration"
	"github.com/goliatone/go-dataspace/transport"
)

var fastPoll = core.PollOptions{MaxAttempts: 5, Interval: time.Millisecond}

type sagaFixture struct {
	conn     *devkit.FakeConnector
	cfg      core.Config
	recorder *narration.Recorder
	factory  core.ManagementFactory
	access   core.TransportAdapter
}

func newSagaFixture(t *testing.T, opts devkit.FakeConnectorOptions) *sagaFixture {
	t.Helper()
	if opts.PublishedAssets == nil {
		opts.PublishedAssets = []string{"asset-hello-1"}
	}
	conn := devkit.NewFakeConnector(opts)
	t.Cleanup(conn.Close)
	adapter := transport.NewRESTAdapter(conn.Client())
	cfg := conn.Config("consumer-1", "consumer-2")
	return &sagaFixture{
		conn:     conn,
		cfg:      cfg,
		recorder: &narration.Recorder{},
		factory:  management.NewFactory(cfg.APIKey, adapter, time.Second, 0, nil),
		access:   adapter,
	}
}

func (f *sagaFixture) transaction(t *testing.T, consumerID string, mutate ...func(*core.TransactionConfig)) *core.Transaction {
	t.Helper()
	party, ok := f.cfg.Consumer(consumerID)
	if !ok {
		t.Fatalf("unknown consumer %q", consumerID)
	}
	api, err := f.factory(party)
	if err != nil {
		t.Fatalf("management client: %v", err)
	}
	cfg := core.TransactionConfig{
		ConsumerID:  consumerID,
		Management:  api,
		Counterpart: f.cfg.Counterpart(),
		Access: core.AccessConfig{
			AuthHeaderMode: f.cfg.AuthHeaderMode,
			Adapter:        f.access,
			Timeout:        time.Second,
		},
		Poll:          fastPoll,
		TransferShape: f.cfg.TransferRequestShape,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	tx, err := core.NewTransaction(cfg, core.WithNotifier(f.recorder))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func TestTransactionRun_HappyPath(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{FinalizeAfter: 2, StartAfter: 1, EDRAfter: 1})
	tx := f.transaction(t, "consumer-1")

	result, err := tx.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Catalog().ProviderID() != devkit.FakeProviderID || result.Catalog().AssetID() != "asset-hello-1" {
		t.Fatalf("unexpected catalog result %#v", result.Catalog())
	}
	if result.Negotiation().NegotiationID() != "neg-1" || result.Negotiation().AgreementID() != "agr-1" {
		t.Fatalf("unexpected negotiation result %#v", result.Negotiation())
	}
	if result.Transfer().TransferProcessID() != "tp-1" {
		t.Fatalf("unexpected transfer id %q", result.Transfer().TransferProcessID())
	}
	credential := result.Credential()
	if credential.Token() != "tok-1" || credential.InternalEndpoint() != devkit.FakeInternalPublicURL {
		t.Fatalf("unexpected credential %s", credential)
	}
	if credential.ExternalEndpoint() != f.conn.PublicURL() {
		t.Fatalf("expected endpoint rewritten to %q, got %q", f.conn.PublicURL(), credential.ExternalEndpoint())
	}
	payload, ok := result.Payload().(map[string]any)
	if !ok || payload["message"] != "hello from the provider" {
		t.Fatalf("unexpected payload %#v", result.Payload())
	}

	// FINALIZED on the third poll, STARTED on the second, credential on the second.
	if got := f.conn.CountRequests("consumer-1", "GET /consumer-1/management/v3/contractnegotiations/neg-1"); got != 3 {
		t.Fatalf("expected 3 negotiation polls, got %d", got)
	}
	if got := f.conn.CountRequests("consumer-1", "/v3/edrs/tp-1/dataaddress"); got != 2 {
		t.Fatalf("expected 2 credential polls, got %d", got)
	}

	policies := f.conn.ContractRequests()
	if len(policies) != 1 {
		t.Fatalf("expected one contract request, got %d", len(policies))
	}
	if policies[0]["odrl:assigner"] == nil || policies[0]["odrl:target"] == nil {
		t.Fatalf("expected normalized offer in contract request, got %#v", policies[0])
	}

	for _, line := range f.recorder.Lines() {
		if strings.Contains(line.Message, "tok-1") {
			t.Fatalf("expected narration to hide the token, got %q", line.Message)
		}
	}
}

func TestTransactionRun_AccessSendsRawTokenByDefault(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{})
	if _, err := f.transaction(t, "consumer-1").Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	var dataPlane []devkit.FakeConnectorRequest
	for _, req := range f.conn.Requests() {
		if strings.HasPrefix(req.Path, "/public") {
			dataPlane = append(dataPlane, req)
		}
	}
	if len(dataPlane) != 1 {
		t.Fatalf("expected one data plane call, got %d", len(dataPlane))
	}
	if got := dataPlane[0].Header.Get("Authorization"); got != "tok-1" {
		t.Fatalf("expected raw token header, got %q", got)
	}
	if dataPlane[0].Path != "/public/" {
		t.Fatalf("expected trailing slash on access url, got %q", dataPlane[0].Path)
	}
}

func TestTransactionRun_BearerMode(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{BearerAuth: true})

	if _, err := f.transaction(t, "consumer-1").Run(context.Background()); err == nil {
		t.Fatalf("expected raw token to be refused by a bearer data plane")
	} else if core.FailedStage(err) != core.StageAccess {
		t.Fatalf("expected access stage failure, got %v", err)
	}

	bearer := f.transaction(t, "consumer-2", func(cfg *core.TransactionConfig) {
		cfg.Access.AuthHeaderMode = core.AuthHeaderModeBearer
	})
	if _, err := bearer.Run(context.Background()); err != nil {
		t.Fatalf("expected bearer mode to succeed: %v", err)
	}
}

func TestTransactionRun_EmptyCatalogStopsBeforeNegotiation(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{PublishedAssets: []string{}})

	_, err := f.transaction(t, "consumer-1").Run(context.Background())
	if core.FailedStage(err) != core.StageCatalog {
		t.Fatalf("expected catalog failure, got %v", err)
	}
	var shapeErr *core.ProtocolShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Reason != core.ReasonEmptyCatalog {
		t.Fatalf("expected empty catalog shape error, got %v", err)
	}
	if got := f.conn.CountRequests("consumer-1", "/v3/contractnegotiations"); got != 0 {
		t.Fatalf("expected no negotiation request, got %d", got)
	}
}

func TestTransactionRun_NegotiationTimeoutCarriesLastObservation(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{NeverFinalize: true})

	_, err := f.transaction(t, "consumer-1").Run(context.Background())
	if core.FailedStage(err) != core.StageNegotiation {
		t.Fatalf("expected negotiation failure, got %v", err)
	}
	var timeoutErr *core.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected timeout error, got %T %v", err, err)
	}
	if timeoutErr.Attempts != fastPoll.MaxAttempts || !strings.Contains(err.Error(), "REQUESTED") {
		t.Fatalf("expected attempts and last state in %v", err)
	}
	if got := f.conn.CountRequests("consumer-1", "/v3/transferprocesses"); got != 0 {
		t.Fatalf("expected no transfer after negotiation timeout, got %d", got)
	}
	if mapped := core.MapError(err); mapped.TextCode != core.ErrorPollTimeout {
		t.Fatalf("expected poll timeout code, got %q", mapped.TextCode)
	}
}

func TestTransactionRun_FinalizedWithoutAgreementIsShapeError(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{OmitAgreement: true})

	_, err := f.transaction(t, "consumer-1").Run(context.Background())
	var shapeErr *core.ProtocolShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Reason != core.ReasonMissingAgreement {
		t.Fatalf("expected missing agreement shape error, got %v", err)
	}
	var timeoutErr *core.TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Fatalf("expected a shape error rather than a timeout")
	}
}

func TestTransactionRun_TransferRequestShapes(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{RejectQualifiedTransfers: true})

	qualified := f.transaction(t, "consumer-1", func(cfg *core.TransactionConfig) {
		cfg.TransferShape = core.TransferRequestShapeQualified
	})
	_, err := qualified.Run(context.Background())
	transportErr, ok := core.AsTransportError(err)
	if !ok || transportErr.StatusCode != http.StatusBadRequest || core.FailedStage(err) != core.StageTransfer {
		t.Fatalf("expected 400 at transfer, got %v", err)
	}
	if !strings.Contains(transportErr.Body, "contractId is required") {
		t.Fatalf("expected connector diagnostic in body, got %q", transportErr.Body)
	}

	if _, err := f.transaction(t, "consumer-2").Run(context.Background()); err != nil {
		t.Fatalf("expected minimal shape to succeed: %v", err)
	}
}

func TestTransactionRun_CancelledContextAbortsPolling(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{NeverFinalize: true})
	ctx, cancel := context.WithCancel(context.Background())
	tx := f.transaction(t, "consumer-1", func(cfg *core.TransactionConfig) {
		cfg.Poll = core.PollOptions{MaxAttempts: 1000, Interval: 200 * time.Millisecond}
	})

	done := make(chan error, 1)
	go func() {
		_, err := tx.Run(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) || core.FailedStage(err) != core.StageNegotiation {
			t.Fatalf("expected cancellation during negotiation polling, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancellation to stop polling promptly")
	}
}

func TestFetchResource_NonSuccessIsTransportError(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{})
	tx := f.transaction(t, "consumer-1")

	_, err := tx.FetchResource(context.Background(), f.conn.PublicURL(), "tok-unknown")
	transportErr, ok := core.AsTransportError(err)
	if !ok || transportErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 transport error, got %v", err)
	}
	if !strings.Contains(transportErr.Body, "token rejected") {
		t.Fatalf("expected data plane body, got %q", transportErr.Body)
	}
}

func TestTransactionStages_RejectMissingPriorResults(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{})
	tx := f.transaction(t, "consumer-1")
	ctx := context.Background()

	if _, err := tx.Negotiate(ctx, core.CatalogResult{}); core.FailedStage(err) != core.StageNegotiation {
		t.Fatalf("expected negotiation to refuse an empty catalog result, got %v", err)
	}
	if _, err := tx.StartTransfer(ctx, core.CatalogResult{}, core.NegotiationResult{}); core.FailedStage(err) != core.StageTransfer {
		t.Fatalf("expected transfer to refuse empty inputs, got %v", err)
	}
	if _, err := tx.FetchCredential(ctx, core.TransferResult{}); core.FailedStage(err) != core.StageCredential {
		t.Fatalf("expected credential to refuse empty input, got %v", err)
	}
	if _, err := tx.Access(ctx, core.CredentialResult{}); core.FailedStage(err) != core.StageAccess {
		t.Fatalf("expected access to refuse empty input, got %v", err)
	}
	if got := len(f.conn.Requests()); got != 0 {
		t.Fatalf("expected no network calls, got %d", got)
	}
}

func TestTransactionRun_NegotiationWithoutIDFailsBeforePolling(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{OmitNegotiationID: true})

	_, err := f.transaction(t, "consumer-1").Run(context.Background())
	if core.FailedStage(err) != core.StageNegotiation {
		t.Fatalf("expected negotiation failure, got %v", err)
	}
	var shapeErr *core.ProtocolShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Reason != core.ReasonMissingID {
		t.Fatalf("expected missing id shape error, got %v", err)
	}
	if got := f.conn.CountRequests("consumer-1", "GET /consumer-1/management/v3/contractnegotiations"); got != 0 {
		t.Fatalf("expected no negotiation polls, got %d", got)
	}
	if got := f.conn.CountRequests("consumer-1", "/v3/transferprocesses"); got != 0 {
		t.Fatalf("expected no transfer request, got %d", got)
	}
}

func TestTransactionRun_DatasetWithoutPolicyIsMalformed(t *testing.T) {
	f := newSagaFixture(t, devkit.FakeConnectorOptions{OmitPolicy: true})

	_, err := f.transaction(t, "consumer-1").Run(context.Background())
	if core.FailedStage(err) != core.StageCatalog {
		t.Fatalf("expected catalog failure, got %v", err)
	}
	var shapeErr *core.ProtocolShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Reason != core.ReasonMalformedDataset {
		t.Fatalf("expected malformed dataset shape error, got %v", err)
	}
	if got := f.conn.CountRequests("consumer-1", "/v3/contractnegotiations"); got != 0 {
		t.Fatalf("expected no negotiation request, got %d", got)
	}
}

func TestFetchCatalog_DatasetWithoutIDIsMalformed(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter().
		Route("POST /v3/catalog/request", devkit.JSONScript(http.StatusOK,
			`{"dspace:participantId":"provider","dcat:dataset":[{"@type":"dcat:Dataset","odrl:hasPolicy":{"@id":"offer-1"}}]}`))
	tx := scriptedTransaction(t, adapter, fastPoll)

	_, err := tx.FetchCatalog(context.Background())
	var shapeErr *core.ProtocolShapeError
	if !errors.As(err, &shapeErr) || shapeErr.Reason != core.ReasonMalformedDataset {
		t.Fatalf("expected malformed dataset shape error, got %v", err)
	}
}

func TestFetchCredential_TimeoutOnTextBodyHidesToken(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter().
		Route("GET /v3/edrs/tp-9/dataaddress", devkit.TransportScript{Response: core.TransportResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       []byte(`{"authorization":"SECRET-TOKEN-123","endpoint":""}`),
		}})
	recorder := &narration.Recorder{}
	tx := scriptedTransaction(t, adapter, core.PollOptions{MaxAttempts: 2, Interval: time.Millisecond}, core.WithNotifier(recorder))
	transfer, err := core.NewTransferResult("tp-9")
	if err != nil {
		t.Fatalf("transfer result: %v", err)
	}

	_, err = tx.FetchCredential(context.Background(), transfer)
	var timeoutErr *core.TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Attempts != 2 {
		t.Fatalf("expected timeout after two attempts, got %v", err)
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN-123") {
		t.Fatalf("expected token to be redacted, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), core.TokenFingerprint("SECRET-TOKEN-123")) {
		t.Fatalf("expected token fingerprint in %q", err.Error())
	}
	for _, line := range recorder.Lines() {
		if strings.Contains(line.Message, "SECRET-TOKEN-123") {
			t.Fatalf("expected narration without the token, got %q", line.Message)
		}
	}
}

func scriptedTransaction(t *testing.T, adapter *devkit.FakeTransportAdapter, poll core.PollOptions, opts ...core.TransactionOption) *core.Transaction {
	t.Helper()
	api, err := management.NewClient(management.Config{Party: "consumer-1", BaseURL: "http://consumer-1/api/management", APIKey: "k"}, adapter, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	tx, err := core.NewTransaction(core.TransactionConfig{
		ConsumerID:  "consumer-1",
		Management:  api,
		Counterpart: core.Counterpart{ID: "provider", ProtocolAddress: "http://edc-provider:11003/api/dsp"},
		Poll:        poll,
	}, opts...)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	return tx
}
