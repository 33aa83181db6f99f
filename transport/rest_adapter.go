package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-dataspace/core"
	goerrors "github.com/goliatone/go-errors"
)

const KindREST = "rest"

const (
	DefaultTimeout                    = 30 * time.Second
	DefaultMaxResponseBodyBytes int64 = 10 << 20 // 10 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes core.TransportRequest values over HTTP. It never
// classifies status codes; callers decide what a non-2xx response means.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

type Option func(*RESTAdapter)

func WithDefaultHeader(key string, value string) Option {
	return func(a *RESTAdapter) {
		if strings.TrimSpace(key) != "" {
			a.DefaultHeaders[strings.TrimSpace(key)] = value
		}
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(a *RESTAdapter) {
		if limit > 0 {
			a.MaxResponseBodyBytes = limit
		}
	}
}

func NewRESTAdapter(client HTTPDoer, opts ...Option) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	adapter := &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: DefaultMaxResponseBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, newError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := requestURL(req.URL, req.Query)
	if err != nil {
		return core.TransportResponse{}, err
	}
	fields := map[string]any{"method": method, "url": target}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return core.TransportResponse{}, wrapError(err, goerrors.CategoryBadInput,
			"transport: build request", http.StatusBadRequest, fields)
	}
	applyHeaders(httpReq.Header, a.DefaultHeaders)
	applyHeaders(httpReq.Header, req.Headers)

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, wrapError(err, goerrors.CategoryExternal,
			"transport: "+method+" "+target, http.StatusBadGateway, fields)
	}
	defer httpRes.Body.Close()

	limit := a.MaxResponseBodyBytes
	if req.MaxResponseBodyBytes > 0 {
		limit = req.MaxResponseBodyBytes
	}
	if limit <= 0 {
		limit = DefaultMaxResponseBodyBytes
	}
	raw, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, wrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, fields)
	}
	if int64(len(raw)) > limit {
		fields["limit_bytes"] = limit
		return core.TransportResponse{}, newError(
			fmt.Sprintf("transport: response from %s exceeds %d bytes", target, limit),
			goerrors.CategoryExternal, http.StatusBadGateway, fields)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       raw,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

func requestURL(raw string, query map[string]string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", newError("transport: request url is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", wrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, map[string]any{"url": raw})
	}
	if len(query) > 0 {
		values := parsed.Query()
		for key, value := range query {
			if strings.TrimSpace(key) != "" {
				values.Set(strings.TrimSpace(key), value)
			}
		}
		parsed.RawQuery = values.Encode()
	}
	return parsed.String(), nil
}

func applyHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		dst.Set(strings.TrimSpace(key), value)
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
