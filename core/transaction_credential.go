package core

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

const (
	credentialFieldToken    = "authorization"
	credentialFieldEndpoint = "endpoint"
)

func credentialPath(transferID string) string {
	return "/v3/edrs/" + url.PathEscape(transferID) + "/dataaddress"
}

// FetchCredential polls the EDR of a started transfer until it carries both
// a token and an endpoint, then rewrites the endpoint for this host.
func (t *Transaction) FetchCredential(ctx context.Context, transfer TransferResult) (CredentialResult, error) {
	startedAt := time.Now()
	if transfer.IsZero() {
		return CredentialResult{}, t.observe(ctx, StageCredential, startedAt,
			badInputError("core: credential lookup requires a transfer result"), t.fields(nil))
	}
	t.narrator().say(ctx, ChannelConsumer, "waiting for EDR of transfer %s", transfer.TransferProcessID())

	path := credentialPath(transfer.TransferProcessID())
	fields, err := WaitForFields(
		ctx,
		t.pollOptions(ctx, StageCredential),
		PollTarget{URL: t.management.URL(path)},
		t.getter(path),
		FirstObject,
		credentialFieldToken, credentialFieldEndpoint,
	)
	var result CredentialResult
	if err == nil {
		result, err = t.credentialFromFields(fields)
	}
	logFields := t.fields(map[string]any{"transfer_process_id": transfer.TransferProcessID()})
	if !result.IsZero() {
		logFields["endpoint"] = result.ExternalEndpoint()
		logFields["token_fingerprint"] = result.TokenFingerprint()
		logFields["token_length"] = result.TokenLength()
	}
	if err := t.observe(ctx, StageCredential, startedAt, err, logFields); err != nil {
		t.narrator().say(ctx, ChannelError, "credential lookup failed: %v", err)
		return CredentialResult{}, err
	}
	t.narrator().sayWith(ctx, ChannelConnector, map[string]any{
		"token_fingerprint": result.TokenFingerprint(),
		"token_length":      result.TokenLength(),
	}, "EDR ready at %s (%s)", result.ExternalEndpoint(), DescribeToken(result.Token()))
	return result, nil
}

// LookupCredential reads the EDR of transferID once. A response without both
// fields is a shape error; nothing is retried.
func (t *Transaction) LookupCredential(ctx context.Context, transferID string) (CredentialResult, error) {
	if t == nil {
		return CredentialResult{}, badInputError("core: transaction is nil")
	}
	if transferID == "" {
		return CredentialResult{}, badInputError("core: credential lookup requires a transfer id")
	}
	body, err := t.management.JSON(ctx, http.MethodGet, credentialPath(transferID), nil)
	if err != nil {
		return CredentialResult{}, err
	}
	doc, ok := FirstObject(body)
	if !ok {
		return CredentialResult{}, newShapeError(StageCredential, ReasonIncompleteCredential, body)
	}
	fields, ok := requireFields(doc, credentialFieldToken, credentialFieldEndpoint)
	if !ok {
		return CredentialResult{}, newShapeError(StageCredential, ReasonIncompleteCredential, doc)
	}
	return t.credentialFromFields(fields)
}

func (t *Transaction) credentialFromFields(fields map[string]string) (CredentialResult, error) {
	internal := fields[credentialFieldEndpoint]
	return NewCredentialResult(internal, t.counterpart.PublicEndpoint.Rewrite(internal), fields[credentialFieldToken])
}
