package core

import (
	"reflect"
	"testing"
)

func TestNormalizeOffer_SetsRelationalFieldsWithoutMutatingInput(t *testing.T) {
	offer := Document{
		"@id":             "offer-1",
		"@type":           "odrl:Set",
		"odrl:permission": []any{Document{"odrl:action": "use"}},
		"odrl:target":     "stale",
	}
	before := CloneDocument(offer)

	normalized := NormalizeOffer(offer, "asset-1", "provider", "consumer-1")

	if !reflect.DeepEqual(offer, before) {
		t.Fatalf("expected input to be left untouched, got %#v", offer)
	}
	if normalized["@type"] != "odrl:Offer" {
		t.Fatalf("expected offer type, got %#v", normalized["@type"])
	}
	for key, want := range map[string]string{
		"odrl:target":   "asset-1",
		"odrl:assigner": "provider",
		"odrl:assignee": "consumer-1",
	} {
		if got := StringField(normalized, key); got != want {
			t.Fatalf("expected %s=%q, got %q", key, want, got)
		}
	}
	if normalized["@id"] != "offer-1" {
		t.Fatalf("expected other fields to survive, got %#v", normalized["@id"])
	}
	normalized["odrl:permission"].([]any)[0].(Document)["odrl:action"] = "modify"
	if offer["odrl:permission"].([]any)[0].(Document)["odrl:action"] != "use" {
		t.Fatalf("expected nested values to be copied")
	}
}

func TestNormalizeOffer_Idempotent(t *testing.T) {
	once := NormalizeOffer(Document{"@id": "offer-1"}, "asset-1", "provider", "consumer-1")
	twice := NormalizeOffer(once, "asset-1", "provider", "consumer-1")
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected idempotent normalization, got %#v vs %#v", once, twice)
	}
	if got := NormalizeOffer(nil, "a", "p", "c"); got["@type"] != "odrl:Offer" {
		t.Fatalf("expected nil offer to normalize into a new document")
	}
}

func TestEndpointRewriter(t *testing.T) {
	rewriter := EndpointRewriter{
		Internal: "http://edc-provider:11005/api/public",
		External: "http://localhost:11015/api/public",
	}
	cases := map[string]string{
		"http://edc-provider:11005/api/public":       "http://localhost:11015/api/public",
		"http://edc-provider:11005/api/public/items": "http://localhost:11015/api/public/items",
		"http://other:9000/api/public":               "http://other:9000/api/public",
		// Only the first occurrence is replaced.
		"http://edc-provider:11005/api/public?next=http://edc-provider:11005/api/public": "http://localhost:11015/api/public?next=http://edc-provider:11005/api/public",
	}
	for in, want := range cases {
		if got := rewriter.Rewrite(in); got != want {
			t.Fatalf("rewrite %q: expected %q, got %q", in, want, got)
		}
	}
	if got := (EndpointRewriter{}).Rewrite("http://edc-provider:11005/api/public"); got != "http://edc-provider:11005/api/public" {
		t.Fatalf("expected empty rewriter to be a no-op, got %q", got)
	}
}
