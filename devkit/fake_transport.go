// Package devkit holds test doubles for connector integrations.
package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-dataspace/core"
)

// TransportScript is one scripted reply.
type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// JSONScript builds a scripted reply with a JSON content type.
func JSONScript(status int, body string) TransportScript {
	return TransportScript{Response: core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}}
}

// FakeTransportAdapter replays scripts in order, routed by URL suffix. The
// last script of a route repeats once the route is exhausted.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	routes   map[string][]TransportScript
	served   map[string]int
	fallback []TransportScript
	requests []core.TransportRequest
}

func NewFakeTransportAdapter(scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		routes:   map[string][]TransportScript{},
		served:   map[string]int{},
		fallback: append([]TransportScript(nil), scripts...),
	}
}

// Route scripts replies for requests whose "METHOD url" ends with key, e.g.
// "GET /v3/transferprocesses/tp-1". The longest matching key wins.
func (a *FakeTransportAdapter) Route(key string, scripts ...TransportScript) *FakeTransportAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[key] = append(a.routes[key], scripts...)
	return a
}

func (*FakeTransportAdapter) Kind() string {
	return "fake"
}

func (a *FakeTransportAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return core.TransportResponse{}, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneRequest(req))
	requestKey := strings.ToUpper(req.Method) + " " + req.URL
	matched := ""
	for key, scripts := range a.routes {
		if len(scripts) > 0 && strings.HasSuffix(requestKey, key) && len(key) > len(matched) {
			matched = key
		}
	}
	if matched != "" {
		return a.next(matched, a.routes[matched])
	}
	if len(a.fallback) > 0 {
		return a.next("", a.fallback)
	}
	return core.TransportResponse{}, fmt.Errorf("devkit: no script for %s", requestKey)
}

func (a *FakeTransportAdapter) next(key string, scripts []TransportScript) (core.TransportResponse, error) {
	index := a.served[key]
	a.served[key] = index + 1
	if index >= len(scripts) {
		index = len(scripts) - 1
	}
	script := scripts[index]
	return cloneResponse(script.Response), script.Err
}

func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneRequest(item))
	}
	return out
}

func cloneRequest(in core.TransportRequest) core.TransportRequest {
	out := in
	out.Headers = cloneStrings(in.Headers)
	out.Query = cloneStrings(in.Query)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

func cloneResponse(in core.TransportResponse) core.TransportResponse {
	out := in
	out.Headers = cloneStrings(in.Headers)
	out.Body = append([]byte(nil), in.Body...)
	if in.Metadata != nil {
		out.Metadata = make(map[string]any, len(in.Metadata))
		for key, value := range in.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
