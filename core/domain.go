package core

import (
	"fmt"
	"strings"
)

// Document is a decoded JSON-LD object as returned by a management API.
type Document = map[string]any

type Stage string

const (
	StageCatalog       Stage = "catalog"
	StageNegotiation   Stage = "negotiation"
	StageTransfer      Stage = "transfer"
	StageCredential    Stage = "credential"
	StageAccess        Stage = "access"
	StageProviderSetup Stage = "provider_setup"
)

const (
	NegotiationStateFinalized  = "FINALIZED"
	NegotiationStateTerminated = "TERMINATED"
	TransferStateStarted       = "STARTED"
	TransferStateTerminated    = "TERMINATED"
)

type CatalogResult struct {
	providerID string
	assetID    string
	offer      Document
}

func NewCatalogResult(providerID string, assetID string, offer Document) (CatalogResult, error) {
	providerID = strings.TrimSpace(providerID)
	assetID = strings.TrimSpace(assetID)
	if providerID == "" {
		return CatalogResult{}, badInputError("core: catalog result requires a provider id")
	}
	if assetID == "" {
		return CatalogResult{}, badInputError("core: catalog result requires an asset id")
	}
	if len(offer) == 0 {
		return CatalogResult{}, badInputError("core: catalog result requires an offer")
	}
	return CatalogResult{
		providerID: providerID,
		assetID:    assetID,
		offer:      CloneDocument(offer),
	}, nil
}

func (r CatalogResult) ProviderID() string { return r.providerID }

func (r CatalogResult) AssetID() string { return r.assetID }

// Offer returns a copy of the normalized offer.
func (r CatalogResult) Offer() Document { return CloneDocument(r.offer) }

func (r CatalogResult) IsZero() bool { return r.assetID == "" }

type NegotiationResult struct {
	negotiationID string
	agreementID   string
}

func NewNegotiationResult(negotiationID string, agreementID string) (NegotiationResult, error) {
	negotiationID = strings.TrimSpace(negotiationID)
	agreementID = strings.TrimSpace(agreementID)
	if negotiationID == "" {
		return NegotiationResult{}, badInputError("core: negotiation result requires a negotiation id")
	}
	if agreementID == "" {
		return NegotiationResult{}, badInputError("core: negotiation result requires an agreement id")
	}
	return NegotiationResult{negotiationID: negotiationID, agreementID: agreementID}, nil
}

func (r NegotiationResult) NegotiationID() string { return r.negotiationID }

func (r NegotiationResult) AgreementID() string { return r.agreementID }

func (r NegotiationResult) IsZero() bool { return r.agreementID == "" }

type TransferResult struct {
	transferProcessID string
}

func NewTransferResult(transferProcessID string) (TransferResult, error) {
	transferProcessID = strings.TrimSpace(transferProcessID)
	if transferProcessID == "" {
		return TransferResult{}, badInputError("core: transfer result requires a transfer process id")
	}
	return TransferResult{transferProcessID: transferProcessID}, nil
}

func (r TransferResult) TransferProcessID() string { return r.transferProcessID }

func (r TransferResult) IsZero() bool { return r.transferProcessID == "" }

// CredentialResult holds an endpoint data reference. The token is only
// reachable through Token; String and the narration helpers print a
// fingerprint instead.
type CredentialResult struct {
	internalEndpoint string
	externalEndpoint string
	token            string
}

func NewCredentialResult(internalEndpoint string, externalEndpoint string, token string) (CredentialResult, error) {
	internalEndpoint = strings.TrimSpace(internalEndpoint)
	externalEndpoint = strings.TrimSpace(externalEndpoint)
	if internalEndpoint == "" {
		return CredentialResult{}, badInputError("core: credential result requires an endpoint")
	}
	if externalEndpoint == "" {
		externalEndpoint = internalEndpoint
	}
	if strings.TrimSpace(token) == "" {
		return CredentialResult{}, badInputError("core: credential result requires a token")
	}
	return CredentialResult{
		internalEndpoint: internalEndpoint,
		externalEndpoint: externalEndpoint,
		token:            token,
	}, nil
}

func (r CredentialResult) InternalEndpoint() string { return r.internalEndpoint }

func (r CredentialResult) ExternalEndpoint() string { return r.externalEndpoint }

func (r CredentialResult) Token() string { return r.token }

func (r CredentialResult) TokenFingerprint() string { return TokenFingerprint(r.token) }

func (r CredentialResult) TokenLength() int { return len(r.token) }

func (r CredentialResult) IsZero() bool { return r.token == "" }

func (r CredentialResult) String() string {
	return fmt.Sprintf("credential(endpoint=%s %s)", r.externalEndpoint, DescribeToken(r.token))
}

type TransactionResult struct {
	catalog     CatalogResult
	negotiation NegotiationResult
	transfer    TransferResult
	credential  CredentialResult
	payload     any
}

func NewTransactionResult(
	catalog CatalogResult,
	negotiation NegotiationResult,
	transfer TransferResult,
	credential CredentialResult,
	payload any,
) (TransactionResult, error) {
	switch {
	case catalog.IsZero():
		return TransactionResult{}, badInputError("core: transaction result requires a catalog result")
	case negotiation.IsZero():
		return TransactionResult{}, badInputError("core: transaction result requires a negotiation result")
	case transfer.IsZero():
		return TransactionResult{}, badInputError("core: transaction result requires a transfer result")
	case credential.IsZero():
		return TransactionResult{}, badInputError("core: transaction result requires a credential result")
	}
	return TransactionResult{
		catalog:     catalog,
		negotiation: negotiation,
		transfer:    transfer,
		credential:  credential,
		payload:     cloneValue(payload),
	}, nil
}

func (r TransactionResult) Catalog() CatalogResult { return r.catalog }

func (r TransactionResult) Negotiation() NegotiationResult { return r.negotiation }

func (r TransactionResult) Transfer() TransferResult { return r.transfer }

func (r TransactionResult) Credential() CredentialResult { return r.credential }

func (r TransactionResult) Payload() any { return cloneValue(r.payload) }

func (r TransactionResult) IsZero() bool { return r.credential.IsZero() }

// CloneDocument returns a deep copy of doc. Nested maps and slices are copied;
// scalar values are shared.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for key, value := range doc {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneDocument(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = cloneValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// FirstObject accepts either a single object or a list and returns the first
// object found. Management APIs return both shapes for single-entry results.
func FirstObject(value any) (Document, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case []any:
		if len(typed) == 0 {
			return nil, false
		}
		doc, ok := typed[0].(map[string]any)
		return doc, ok
	default:
		return nil, false
	}
}

// StringField returns the first non-empty string stored under any of keys.
func StringField(doc Document, keys ...string) string {
	if doc == nil {
		return ""
	}
	for _, key := range keys {
		switch typed := doc[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		case map[string]any:
			if nested := StringField(typed, "@id", "@value"); nested != "" {
				return nested
			}
		}
	}
	return ""
}

func asDocument(value any) (Document, bool) {
	doc, ok := value.(map[string]any)
	return doc, ok
}
