package core

import (
	"context"
	"net/url"
	"time"
)

const negotiationsPath = "/v3/contractnegotiations"

// Negotiate submits a contract request for the catalog offer and waits for
// the negotiation to reach FINALIZED.
func (t *Transaction) Negotiate(ctx context.Context, catalog CatalogResult) (NegotiationResult, error) {
	startedAt := time.Now()
	if catalog.IsZero() {
		return NegotiationResult{}, t.observe(ctx, StageNegotiation, startedAt,
			badInputError("core: negotiation requires a catalog result"), t.fields(nil))
	}
	t.narrator().say(ctx, ChannelConsumer, "negotiating contract for asset %s", catalog.AssetID())
	result, err := t.negotiate(ctx, catalog)
	fields := t.fields(map[string]any{
		"asset_id":       catalog.AssetID(),
		"negotiation_id": result.NegotiationID(),
		"agreement_id":   result.AgreementID(),
	})
	if err := t.observe(ctx, StageNegotiation, startedAt, err, fields); err != nil {
		t.narrator().say(ctx, ChannelError, "negotiation failed: %v", err)
		return NegotiationResult{}, err
	}
	t.narrator().say(ctx, ChannelConnector, "negotiation %s finalized with agreement %s",
		result.NegotiationID(), result.AgreementID())
	return result, nil
}

func (t *Transaction) negotiate(ctx context.Context, catalog CatalogResult) (NegotiationResult, error) {
	policy := NormalizeOffer(catalog.Offer(), catalog.AssetID(), catalog.ProviderID(), t.consumerID)
	created, err := t.postDocument(ctx, StageNegotiation, negotiationsPath,
		contractRequestBody(t.counterpart.ProtocolAddress, catalog.ProviderID(), policy))
	if err != nil {
		return NegotiationResult{}, err
	}
	negotiationID := StringField(created, "@id")
	if negotiationID == "" {
		return NegotiationResult{}, newShapeError(StageNegotiation, ReasonMissingID, created)
	}
	t.narrator().say(ctx, ChannelConsumer, "negotiation %s requested", negotiationID)

	path := negotiationsPath + "/" + url.PathEscape(negotiationID)
	final, err := WaitForState(
		ctx,
		t.pollOptions(ctx, StageNegotiation),
		PollTarget{URL: t.management.URL(path), Wanted: "state=" + NegotiationStateFinalized},
		t.getter(path),
		FieldState("state", EDCNamespace+"state"),
		NegotiationStateFinalized,
	)
	if err != nil {
		return NegotiationResult{}, err
	}
	agreementID := StringField(final, "contractAgreementId", EDCNamespace+"contractAgreementId")
	if agreementID == "" {
		return NegotiationResult{}, newShapeError(StageNegotiation, ReasonMissingAgreement, final)
	}
	return NewNegotiationResult(negotiationID, agreementID)
}

func contractRequestBody(counterPartyAddress string, providerID string, policy Document) Document {
	return Document{
		"@context": Document{
			"@vocab": EDCNamespace,
			"edc":    EDCNamespace,
			"odrl":   ODRLNamespace,
		},
		"@type":                   "edc:ContractRequest",
		"edc:counterPartyAddress": counterPartyAddress,
		"edc:counterPartyId":      providerID,
		"edc:protocol":            ProtocolDataspaceHTTP,
		"edc:policy":              policy,
	}
}
