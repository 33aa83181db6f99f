package core

import (
	"context"
	"net/url"
	"strings"
	"time"
)

const transferProcessesPath = "/v3/transferprocesses"

// StartTransfer opens a pull transfer under the agreement and waits for the
// process to reach STARTED.
func (t *Transaction) StartTransfer(ctx context.Context, catalog CatalogResult, negotiation NegotiationResult) (TransferResult, error) {
	startedAt := time.Now()
	if catalog.IsZero() || negotiation.IsZero() {
		return TransferResult{}, t.observe(ctx, StageTransfer, startedAt,
			badInputError("core: transfer requires catalog and negotiation results"), t.fields(nil))
	}
	t.narrator().say(ctx, ChannelConsumer, "starting transfer under agreement %s", negotiation.AgreementID())
	result, err := t.startTransfer(ctx, catalog.ProviderID(), negotiation.AgreementID())
	fields := t.fields(map[string]any{
		"agreement_id":        negotiation.AgreementID(),
		"transfer_process_id": result.TransferProcessID(),
	})
	if err := t.observe(ctx, StageTransfer, startedAt, err, fields); err != nil {
		t.narrator().say(ctx, ChannelError, "transfer failed: %v", err)
		return TransferResult{}, err
	}
	t.narrator().say(ctx, ChannelConnector, "transfer %s started", result.TransferProcessID())
	return result, nil
}

func (t *Transaction) startTransfer(ctx context.Context, providerID string, agreementID string) (TransferResult, error) {
	transferID, err := t.createTransfer(ctx, agreementID, providerID)
	if err != nil {
		return TransferResult{}, err
	}
	path := transferProcessesPath + "/" + url.PathEscape(transferID)
	if _, err := WaitForState(
		ctx,
		t.pollOptions(ctx, StageTransfer),
		PollTarget{URL: t.management.URL(path), Wanted: "state=" + TransferStateStarted},
		t.getter(path),
		FieldState("state", EDCNamespace+"state"),
		TransferStateStarted,
	); err != nil {
		return TransferResult{}, err
	}
	return NewTransferResult(transferID)
}

// CreateTransfer submits a transfer request without waiting for it to start.
// The reuse probes call it with identifiers owned by another consumer.
func (t *Transaction) CreateTransfer(ctx context.Context, agreementID string, providerID string) (string, error) {
	if t == nil {
		return "", badInputError("core: transaction is nil")
	}
	return t.createTransfer(ctx, agreementID, providerID)
}

func (t *Transaction) createTransfer(ctx context.Context, agreementID string, providerID string) (string, error) {
	if strings.TrimSpace(agreementID) == "" {
		return "", badInputError("core: transfer requires an agreement id")
	}
	if strings.TrimSpace(providerID) == "" {
		providerID = t.counterpart.ID
	}
	created, err := t.postDocument(ctx, StageTransfer, transferProcessesPath,
		TransferRequestBody(t.transferShape, agreementID, providerID, t.counterpart.ProtocolAddress))
	if err != nil {
		return "", err
	}
	transferID := StringField(created, "@id")
	if transferID == "" {
		return "", newShapeError(StageTransfer, ReasonMissingID, created)
	}
	return transferID, nil
}

// TransferRequestBody renders a pull transfer request in the given shape.
func TransferRequestBody(shape TransferRequestShape, agreementID string, providerID string, counterPartyAddress string) Document {
	if shape == TransferRequestShapeQualified {
		return Document{
			"@context":                           Document{"@vocab": EDCNamespace},
			"@type":                              EDCNamespace + "TransferRequest",
			EDCNamespace + "contractId":          agreementID,
			EDCNamespace + "protocol":            ProtocolDataspaceHTTP,
			EDCNamespace + "connectorId":         providerID,
			EDCNamespace + "counterPartyAddress": counterPartyAddress,
			EDCNamespace + "transferType":        TransferTypeHTTPPull,
		}
	}
	return Document{
		"@context":            Document{"@vocab": EDCNamespace},
		"@type":               "TransferRequest",
		"contractId":          agreementID,
		"protocol":            ProtocolDataspaceHTTP,
		"connectorId":         providerID,
		"counterPartyAddress": counterPartyAddress,
		"transferType":        TransferTypeHTTPPull,
	}
}
