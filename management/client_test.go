package management

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-dataspace/core"
	"github.com/goliatone/go-dataspace/transport"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		Party:   "consumer-1",
		BaseURL: server.URL + "/management/",
		APIKey:  "SomeOtherApiKey",
	}, transport.NewRESTAdapter(server.Client()), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestClient_JSONSendsHeadersAndDecodesJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management/v3/catalog/request" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get(HeaderAPIKey); got != "SomeOtherApiKey" {
			t.Fatalf("expected api key header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("expected json content type, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"limit":50}` {
			t.Fatalf("unexpected body %q", string(body))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"dspace:participantId":"provider"}`))
	})

	out, err := client.JSON(context.Background(), http.MethodPost, "/v3/catalog/request", map[string]any{"limit": 50})
	if err != nil {
		t.Fatalf("json request: %v", err)
	}
	doc, ok := out.(map[string]any)
	if !ok || doc["dspace:participantId"] != "provider" {
		t.Fatalf("expected decoded object, got %#v", out)
	}
}

func TestClient_RawKeepsTextWithoutJSONContentType(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"verbatim" : true}` {
			t.Fatalf("expected raw bytes verbatim, got %q", string(body))
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"looks":"like json"}`))
	})

	out, err := client.Raw(context.Background(), http.MethodPost, "v3/transferprocesses", []byte(`{"verbatim" : true}`))
	if err != nil {
		t.Fatalf("raw request: %v", err)
	}
	if out != `{"looks":"like json"}` {
		t.Fatalf("expected raw text, got %#v", out)
	}
}

func TestClient_InvalidJSONFallsBackToText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not json`))
	})

	out, err := client.JSON(context.Background(), http.MethodGet, "/v3/assets/a", nil)
	if err != nil {
		t.Fatalf("json request: %v", err)
	}
	if out != "not json" {
		t.Fatalf("expected text fallback, got %#v", out)
	}
}

func TestClient_NonSuccessReturnsTransportError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`[{"type":"ObjectNotFound"}]`))
	})

	_, err := client.JSON(context.Background(), http.MethodGet, "/v3/edrs/tp-9/dataaddress", nil)
	var transportErr *core.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %T %v", err, err)
	}
	if transportErr.StatusCode != http.StatusNotFound || transportErr.Method != http.MethodGet {
		t.Fatalf("unexpected transport error %+v", transportErr)
	}
	if transportErr.URL != server.URL+"/management/v3/edrs/tp-9/dataaddress" {
		t.Fatalf("unexpected url %q", transportErr.URL)
	}
	if transportErr.Body != `[{"type":"ObjectNotFound"}]` {
		t.Fatalf("expected rendered body, got %q", transportErr.Body)
	}
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found classification")
	}
}

func TestClient_FetchReturnsBodyForAnyStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"missing"}`))
	})

	res, err := client.Fetch(context.Background(), "/v3/contractnegotiations/n-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.OK() || res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %d", res.StatusCode)
	}
	if doc, ok := res.Body.(map[string]any); !ok || doc["message"] != "missing" {
		t.Fatalf("expected decoded body, got %#v", res.Body)
	}
}

func TestNewFactoryBuildsPerPartyClients(t *testing.T) {
	factory := NewFactory("key", transport.NewRESTAdapter(nil), 0, 0, nil)
	api, err := factory(core.PartyConfig{ID: "consumer-2", ManagementURL: "http://localhost:22012/management"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if api.Party() != "consumer-2" {
		t.Fatalf("expected party id, got %q", api.Party())
	}
	if got := api.URL("/v3/assets"); got != "http://localhost:22012/management/v3/assets" {
		t.Fatalf("unexpected url %q", got)
	}
	if _, err := factory(core.PartyConfig{ID: "broken"}); err == nil {
		t.Fatalf("expected missing base url error")
	}
}
