// Package management talks to a connector management API.
package management

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-dataspace/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	HeaderAPIKey      = "X-Api-Key"
	contentTypeJSON   = "application/json"
	defaultAPITimeout = 30 * time.Second
)

type Config struct {
	Party                string
	BaseURL              string
	APIKey               string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// Response is a decoded management API reply regardless of status.
type Response struct {
	StatusCode int
	Body       any
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Client implements core.ManagementAPI for one party.
type Client struct {
	cfg     Config
	adapter core.TransportAdapter
	logger  core.Logger
}

func NewClient(cfg Config, adapter core.TransportAdapter, logger core.Logger) (*Client, error) {
	cfg.Party = strings.TrimSpace(cfg.Party)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("management: base url is required for party %q", cfg.Party)
	}
	if adapter == nil {
		return nil, fmt.Errorf("management: transport adapter is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAPITimeout
	}
	return &Client{cfg: cfg, adapter: adapter, logger: glog.Ensure(logger)}, nil
}

// NewFactory returns a core.ManagementFactory that shares adapter and
// credentials across every party.
func NewFactory(apiKey string, adapter core.TransportAdapter, timeout time.Duration, maxBody int64, logger core.Logger) core.ManagementFactory {
	return func(party core.PartyConfig) (core.ManagementAPI, error) {
		return NewClient(Config{
			Party:                party.ID,
			BaseURL:              party.ManagementURL,
			APIKey:               apiKey,
			Timeout:              timeout,
			MaxResponseBodyBytes: maxBody,
		}, adapter, logger)
	}
}

func (c *Client) Party() string {
	return c.cfg.Party
}

func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) URL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return c.cfg.BaseURL
	}
	return c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// JSON serializes body (when non-nil) and fails on any non-2xx status.
func (c *Client) JSON(ctx context.Context, method string, path string, body any) (any, error) {
	var raw []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("management: encode %s %s: %w", method, path, err)
		}
		raw = encoded
	}
	return c.Raw(ctx, method, path, raw)
}

// Raw sends raw verbatim and fails on any non-2xx status.
func (c *Client) Raw(ctx context.Context, method string, path string, raw []byte) (any, error) {
	response, err := c.send(ctx, method, path, raw)
	if err != nil {
		return nil, err
	}
	if !response.OK() {
		return nil, &core.TransportError{
			StatusCode: response.StatusCode,
			Method:     strings.ToUpper(method),
			URL:        c.URL(path),
			Body:       core.RenderBody(response.Body),
		}
	}
	return response.Body, nil
}

// Fetch issues a GET and returns the decoded body for any status.
func (c *Client) Fetch(ctx context.Context, path string) (Response, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

func (c *Client) send(ctx context.Context, method string, path string, raw []byte) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("management: client is nil")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	target := c.URL(path)
	headers := map[string]string{
		"Accept":       contentTypeJSON,
		"Content-Type": contentTypeJSON,
	}
	if c.cfg.APIKey != "" {
		headers[HeaderAPIKey] = c.cfg.APIKey
	}

	startedAt := time.Now()
	res, err := c.adapter.Do(ctx, core.TransportRequest{
		Method:               method,
		URL:                  target,
		Headers:              headers,
		Body:                 raw,
		Timeout:              c.cfg.Timeout,
		MaxResponseBodyBytes: c.cfg.MaxResponseBodyBytes,
	})
	if err != nil {
		c.logger.Debug("management request failed", "party", c.cfg.Party, "method", method, "url", target, "error", err.Error())
		return Response{}, err
	}
	c.logger.Debug("management request",
		"party", c.cfg.Party,
		"method", method,
		"url", target,
		"status", res.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return Response{StatusCode: res.StatusCode, Body: decodeBody(res)}, nil
}

// decodeBody keeps the raw text unless the response declares JSON and
// decodes cleanly.
func decodeBody(res core.TransportResponse) any {
	text := string(res.Body)
	if strings.TrimSpace(text) == "" {
		return text
	}
	if !strings.Contains(strings.ToLower(headerValue(res.Headers, "Content-Type")), contentTypeJSON) {
		return text
	}
	var decoded any
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return text
	}
	return decoded
}

func headerValue(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

var _ core.ManagementAPI = (*Client)(nil)
