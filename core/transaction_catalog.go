package core

import (
	"context"
	"net/http"
	"time"
)

const (
	catalogRequestPath  = "/v3/catalog/request"
	catalogRequestLimit = 50
)

// FetchCatalog requests the counterpart catalog and selects the first
// dataset offer, normalized for this consumer.
func (t *Transaction) FetchCatalog(ctx context.Context) (CatalogResult, error) {
	startedAt := time.Now()
	t.narrator().say(ctx, ChannelConsumer, "requesting catalog from %s", t.counterpart.ProtocolAddress)
	result, err := t.fetchCatalog(ctx)
	fields := t.fields(map[string]any{"asset_id": result.AssetID()})
	if err := t.observe(ctx, StageCatalog, startedAt, err, fields); err != nil {
		t.narrator().say(ctx, ChannelError, "catalog failed: %v", err)
		return CatalogResult{}, err
	}
	t.narrator().say(ctx, ChannelConsumer, "catalog offers asset %s from %s", result.AssetID(), result.ProviderID())
	return result, nil
}

func (t *Transaction) fetchCatalog(ctx context.Context) (CatalogResult, error) {
	response, err := t.management.JSON(ctx, http.MethodPost, catalogRequestPath, catalogRequestBody(t.counterpart.ProtocolAddress))
	if err != nil {
		return CatalogResult{}, err
	}
	catalog, ok := asDocument(response)
	if !ok {
		return CatalogResult{}, newShapeError(StageCatalog, ReasonMalformedResponse, response)
	}

	providerID := StringField(catalog, "dspace:participantId", EDCNamespace+"participantId")
	if providerID == "" {
		providerID = t.counterpart.ID
	}
	dataset, ok := FirstObject(catalog["dcat:dataset"])
	if !ok {
		return CatalogResult{}, newShapeError(StageCatalog, ReasonEmptyCatalog, catalog)
	}
	assetID := StringField(dataset, "@id")
	offer, hasOffer := FirstObject(dataset["odrl:hasPolicy"])
	if assetID == "" || !hasOffer {
		return CatalogResult{}, newShapeError(StageCatalog, ReasonMalformedDataset, dataset)
	}

	return NewCatalogResult(providerID, assetID, NormalizeOffer(offer, assetID, providerID, t.consumerID))
}

func catalogRequestBody(counterPartyAddress string) Document {
	return Document{
		"@type":                              EDCNamespace + "CatalogRequest",
		EDCNamespace + "counterPartyAddress": counterPartyAddress,
		EDCNamespace + "protocol":            ProtocolDataspaceHTTP,
		EDCNamespace + "querySpec": Document{
			"@type":                 EDCNamespace + "QuerySpec",
			EDCNamespace + "offset": 0,
			EDCNamespace + "limit":  catalogRequestLimit,
		},
	}
}
