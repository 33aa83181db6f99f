package devkit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-dataspace/core"
)

const (
	FakeAPIKey            = "SomeOtherApiKey"
	FakeProviderID        = "provider"
	FakeInternalPublicURL = "http://edc-provider:11005/api/public"
	fakeManagementSuffix  = "/management"
)

// FakeConnectorOptions tune the simulated connector. Zero values give a
// connector that finalizes and starts on the first poll.
type FakeConnectorOptions struct {
	// Polls that observe a non-terminal state before it flips.
	FinalizeAfter int
	StartAfter    int
	EDRAfter      int
	// NeverFinalize keeps negotiations in REQUESTED.
	NeverFinalize bool
	// OmitAgreement finalizes negotiations without contractAgreementId.
	OmitAgreement bool
	// OmitNegotiationID answers negotiation requests without an @id.
	OmitNegotiationID bool
	// OmitPolicy publishes catalog datasets without odrl:hasPolicy.
	OmitPolicy bool
	// RejectQualifiedTransfers answers 400 to namespaced transfer requests.
	RejectQualifiedTransfers bool
	// BearerAuth makes the data plane require "Bearer <token>".
	BearerAuth bool
	// Payload is served by the data plane.
	Payload any
	// PublishedAssets are visible in the catalog without provider setup.
	PublishedAssets []string
}

type fakeNegotiation struct {
	owner       string
	polls       int
	agreementID string
	policy      core.Document
}

type fakeTransfer struct {
	owner       string
	agreementID string
	polls       int
	edrPolls    int
	token       string
}

// FakeConnectorRequest is one observed call.
type FakeConnectorRequest struct {
	Party  string
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// FakeConnector simulates the management APIs of every party plus the
// provider data plane on one httptest server. Party management APIs live at
// /<party>/management; the data plane is /public.
type FakeConnector struct {
	opts   FakeConnectorOptions
	server *httptest.Server

	mu                  sync.Mutex
	counters            map[string]int
	assets              map[string]core.Document
	contractDefinitions map[string]core.Document
	negotiations        map[string]*fakeNegotiation
	agreements          map[string]string
	transfers           map[string]*fakeTransfer
	tokens              map[string]string
	requests            []FakeConnectorRequest
}

func NewFakeConnector(opts FakeConnectorOptions) *FakeConnector {
	if opts.Payload == nil {
		opts.Payload = map[string]any{"message": "hello from the provider"}
	}
	c := &FakeConnector{
		opts:                opts,
		counters:            map[string]int{},
		assets:              map[string]core.Document{},
		contractDefinitions: map[string]core.Document{},
		negotiations:        map[string]*fakeNegotiation{},
		agreements:          map[string]string{},
		transfers:           map[string]*fakeTransfer{},
		tokens:              map[string]string{},
	}
	for _, assetID := range opts.PublishedAssets {
		c.assets[assetID] = core.Document{"@id": assetID}
		c.contractDefinitions["cd-"+assetID] = core.Document{"@id": "cd-" + assetID}
	}
	c.server = httptest.NewServer(http.HandlerFunc(c.serveHTTP))
	return c
}

func (c *FakeConnector) Close() {
	c.server.Close()
}

func (c *FakeConnector) URL() string {
	return c.server.URL
}

func (c *FakeConnector) Client() *http.Client {
	return c.server.Client()
}

func (c *FakeConnector) ManagementURL(party string) string {
	return c.server.URL + "/" + party + fakeManagementSuffix
}

func (c *FakeConnector) ProtocolAddress() string {
	return "http://edc-provider:11003/api/dsp"
}

func (c *FakeConnector) PublicURL() string {
	return c.server.URL + "/public"
}

// Config returns a configuration pointing every party at this connector.
func (c *FakeConnector) Config(consumers ...string) core.Config {
	cfg := core.DefaultConfig()
	cfg.APIKey = FakeAPIKey
	cfg.Provider = core.ProviderConfig{
		ID:                FakeProviderID,
		ManagementURL:     c.ManagementURL(FakeProviderID),
		ProtocolAddress:   c.ProtocolAddress(),
		PublicURL:         c.PublicURL(),
		InternalPublicURL: FakeInternalPublicURL,
	}
	cfg.Consumers = nil
	for _, id := range consumers {
		cfg.Consumers = append(cfg.Consumers, core.PartyConfig{ID: id, ManagementURL: c.ManagementURL(id)})
	}
	cfg.Prober = core.PartyConfig{ID: "consumer-3", ManagementURL: c.ManagementURL("consumer-3")}
	cfg.SourcePreviewURL = c.server.URL + "/source"
	cfg.Publications[0].SourceURL = c.server.URL + "/source"
	cfg.Ledger.Enabled = false
	return cfg
}

func (c *FakeConnector) Requests() []FakeConnectorRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FakeConnectorRequest(nil), c.requests...)
}

// CountRequests counts calls whose "METHOD path" contains fragment.
func (c *FakeConnector) CountRequests(party string, fragment string) int {
	count := 0
	for _, req := range c.Requests() {
		if party != "" && req.Party != party {
			continue
		}
		if strings.Contains(req.Method+" "+req.Path, fragment) {
			count++
		}
	}
	return count
}

// ContractRequests returns the policies submitted with each negotiation.
func (c *FakeConnector) ContractRequests() []core.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Document, 0, len(c.negotiations))
	for i := 1; i <= c.counters["neg"]; i++ {
		if negotiation, ok := c.negotiations[fmt.Sprintf("neg-%d", i)]; ok {
			out = append(out, core.CloneDocument(negotiation.policy))
		}
	}
	return out
}

func (c *FakeConnector) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case path == "/source":
		c.record("", r, body)
		writeJSON(w, http.StatusOK, c.opts.Payload)
		return
	case path == "/public":
		c.record("", r, body)
		c.serveDataPlane(w, r)
		return
	}

	party, rest, ok := splitParty(path)
	c.record(party, r, body)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown path"))
		return
	}
	if r.Header.Get("X-Api-Key") != FakeAPIKey {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid api key"))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && rest == "/v3/catalog/request":
		writeJSON(w, http.StatusOK, c.catalog())
	case r.Method == http.MethodPost && rest == "/v3/contractnegotiations":
		c.createNegotiation(w, party, body)
	case r.Method == http.MethodGet && strings.HasPrefix(rest, "/v3/contractnegotiations/"):
		c.getNegotiation(w, party, strings.TrimPrefix(rest, "/v3/contractnegotiations/"))
	case r.Method == http.MethodPost && rest == "/v3/transferprocesses":
		c.createTransfer(w, party, body)
	case r.Method == http.MethodGet && strings.HasPrefix(rest, "/v3/transferprocesses/"):
		c.getTransfer(w, party, strings.TrimPrefix(rest, "/v3/transferprocesses/"))
	case r.Method == http.MethodGet && strings.HasPrefix(rest, "/v3/edrs/"):
		c.getEDR(w, party, strings.TrimSuffix(strings.TrimPrefix(rest, "/v3/edrs/"), "/dataaddress"))
	case strings.HasPrefix(rest, "/v3/assets"):
		c.ensureObject(w, r.Method, rest, "/v3/assets", c.assets, body)
	case strings.HasPrefix(rest, "/v3/contractdefinitions"):
		c.ensureObject(w, r.Method, rest, "/v3/contractdefinitions", c.contractDefinitions, body)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown path"))
	}
}

func (c *FakeConnector) record(party string, r *http.Request, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, FakeConnectorRequest{
		Party:  party,
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
}

func (c *FakeConnector) nextID(prefix string) string {
	c.counters[prefix]++
	return fmt.Sprintf("%s-%d", prefix, c.counters[prefix])
}

func (c *FakeConnector) catalog() core.Document {
	ids := make([]string, 0, len(c.assets))
	for assetID := range c.assets {
		ids = append(ids, assetID)
	}
	sort.Strings(ids)
	datasets := make([]any, 0, len(ids))
	for _, assetID := range ids {
		dataset := core.Document{
			"@id":   assetID,
			"@type": "dcat:Dataset",
		}
		if !c.opts.OmitPolicy {
			dataset["odrl:hasPolicy"] = core.Document{
				"@id":             "offer-" + assetID,
				"@type":           "odrl:Offer",
				"odrl:permission": []any{},
			}
		}
		datasets = append(datasets, dataset)
	}
	return core.Document{
		"@type":                "dcat:Catalog",
		"dspace:participantId": FakeProviderID,
		"dcat:dataset":         datasets,
	}
}

func (c *FakeConnector) createNegotiation(w http.ResponseWriter, party string, body []byte) {
	var request core.Document
	if err := json.Unmarshal(body, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}
	if c.opts.OmitNegotiationID {
		writeJSON(w, http.StatusOK, core.Document{"@type": "IdResponse", "createdAt": 1700000000000})
		return
	}
	policy, _ := core.FirstObject(request["edc:policy"])
	id := c.nextID("neg")
	c.negotiations[id] = &fakeNegotiation{owner: party, policy: policy}
	writeJSON(w, http.StatusOK, core.Document{"@id": id, "@type": "IdResponse"})
}

func (c *FakeConnector) getNegotiation(w http.ResponseWriter, party string, id string) {
	negotiation, ok := c.negotiations[id]
	if !ok || negotiation.owner != party {
		writeJSON(w, http.StatusNotFound, errorBody("negotiation "+id+" not found"))
		return
	}
	negotiation.polls++
	state := "REQUESTED"
	doc := core.Document{"@id": id, "@type": "ContractNegotiation"}
	if !c.opts.NeverFinalize && negotiation.polls > c.opts.FinalizeAfter {
		state = core.NegotiationStateFinalized
		if negotiation.agreementID == "" {
			negotiation.agreementID = "agr-" + strings.TrimPrefix(id, "neg-")
			c.agreements[negotiation.agreementID] = party
		}
		if !c.opts.OmitAgreement {
			doc["contractAgreementId"] = negotiation.agreementID
		}
	}
	doc["state"] = state
	writeJSON(w, http.StatusOK, doc)
}

func (c *FakeConnector) createTransfer(w http.ResponseWriter, party string, body []byte) {
	var request core.Document
	if err := json.Unmarshal(body, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}
	agreementID := core.StringField(request, "contractId")
	if agreementID == "" {
		if c.opts.RejectQualifiedTransfers {
			writeJSON(w, http.StatusBadRequest, errorBody("contractId is required"))
			return
		}
		agreementID = core.StringField(request, core.EDCNamespace+"contractId")
	}
	if owner, ok := c.agreements[agreementID]; !ok || owner != party {
		writeJSON(w, http.StatusConflict, errorBody("contract agreement "+agreementID+" is not valid for "+party))
		return
	}
	id := c.nextID("tp")
	c.transfers[id] = &fakeTransfer{owner: party, agreementID: agreementID}
	writeJSON(w, http.StatusOK, core.Document{"@id": id, "@type": "IdResponse"})
}

func (c *FakeConnector) getTransfer(w http.ResponseWriter, party string, id string) {
	transfer, ok := c.transfers[id]
	if !ok || transfer.owner != party {
		writeJSON(w, http.StatusNotFound, errorBody("transfer process "+id+" not found"))
		return
	}
	transfer.polls++
	state := "REQUESTED"
	if transfer.polls > c.opts.StartAfter {
		state = core.TransferStateStarted
	}
	writeJSON(w, http.StatusOK, core.Document{"@id": id, "state": state})
}

func (c *FakeConnector) getEDR(w http.ResponseWriter, party string, id string) {
	transfer, ok := c.transfers[id]
	if !ok || transfer.owner != party {
		writeJSON(w, http.StatusNotFound, errorBody("edr for "+id+" not found"))
		return
	}
	transfer.edrPolls++
	if transfer.edrPolls <= c.opts.EDRAfter {
		writeJSON(w, http.StatusOK, []any{core.Document{"endpoint": FakeInternalPublicURL}})
		return
	}
	if transfer.token == "" {
		transfer.token = "tok-" + strings.TrimPrefix(id, "tp-")
		c.tokens[transfer.token] = id
	}
	writeJSON(w, http.StatusOK, core.Document{
		"@type":         "DataAddress",
		"endpointType":  "https://w3id.org/idsa/v4.1/HTTP",
		"endpoint":      FakeInternalPublicURL,
		"authType":      "bearer",
		"authorization": transfer.token,
	})
}

func (c *FakeConnector) ensureObject(w http.ResponseWriter, method string, rest string, collection string, store map[string]core.Document, body []byte) {
	switch {
	case method == http.MethodGet && strings.HasPrefix(rest, collection+"/"):
		id := strings.TrimPrefix(rest, collection+"/")
		doc, ok := store[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody("ObjectNotFound"))
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case method == http.MethodPost && rest == collection:
		var doc core.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
			return
		}
		id := core.StringField(doc, "@id")
		if _, exists := store[id]; exists {
			writeJSON(w, http.StatusConflict, errorBody("ObjectConflict"))
			return
		}
		store[id] = doc
		writeJSON(w, http.StatusOK, core.Document{"@id": id})
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown path"))
	}
}

func (c *FakeConnector) serveDataPlane(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if c.opts.BearerAuth {
		if !strings.HasPrefix(token, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorBody("bearer token required"))
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")
	}
	c.mu.Lock()
	_, ok := c.tokens[token]
	c.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusForbidden, errorBody("token rejected"))
		return
	}
	writeJSON(w, http.StatusOK, c.opts.Payload)
}

func splitParty(path string) (string, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	party, rest, ok := strings.Cut(trimmed, "/")
	if !ok || party == "" {
		return "", "", false
	}
	rest = "/" + rest
	if !strings.HasPrefix(rest, fakeManagementSuffix+"/") {
		return party, "", false
	}
	return party, strings.TrimPrefix(rest, fakeManagementSuffix), true
}

func errorBody(message string) []any {
	return []any{map[string]any{"message": message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
