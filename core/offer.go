package core

// NormalizeOffer returns a copy of offer re-stamped as an ODRL offer that
// names the target asset, the assigner and the assignee. The input is never
// modified and normalizing twice yields the same document.
func NormalizeOffer(offer Document, assetID string, providerID string, consumerID string) Document {
	normalized := CloneDocument(offer)
	if normalized == nil {
		normalized = Document{}
	}
	normalized["@type"] = "odrl:Offer"
	normalized["odrl:target"] = Document{"@id": assetID}
	normalized["odrl:assigner"] = Document{"@id": providerID}
	normalized["odrl:assignee"] = Document{"@id": consumerID}
	return normalized
}
