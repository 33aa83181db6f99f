package core

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Access pulls the protected resource with the EDR token.
func (t *Transaction) Access(ctx context.Context, credential CredentialResult) (any, error) {
	startedAt := time.Now()
	if credential.IsZero() {
		return nil, t.observe(ctx, StageAccess, startedAt,
			badInputError("core: access requires a credential result"), t.fields(nil))
	}
	t.narrator().say(ctx, ChannelConsumer, "pulling %s", accessURL(credential.ExternalEndpoint()))
	payload, err := t.FetchResource(ctx, credential.ExternalEndpoint(), credential.Token())
	fields := t.fields(map[string]any{
		"endpoint":          credential.ExternalEndpoint(),
		"token_fingerprint": credential.TokenFingerprint(),
	})
	if err := t.observe(ctx, StageAccess, startedAt, err, fields); err != nil {
		t.narrator().say(ctx, ChannelError, "access failed: %v", err)
		return nil, err
	}
	t.narrator().say(ctx, ChannelConsumer, "received %s", DescribePayload(payload))
	return payload, nil
}

// FetchResource issues one authorized GET against a data plane endpoint.
// The body is JSON-decoded when possible and returned as text otherwise.
func (t *Transaction) FetchResource(ctx context.Context, endpoint string, token string) (any, error) {
	if t == nil {
		return nil, badInputError("core: transaction is nil")
	}
	if t.access.Adapter == nil {
		return nil, badInputError("core: access requires a transport adapter")
	}
	if strings.TrimSpace(endpoint) == "" || token == "" {
		return nil, badInputError("core: access requires an endpoint and a token")
	}
	target := accessURL(endpoint)
	response, err := t.access.Adapter.Do(ctx, TransportRequest{
		Method: http.MethodGet,
		URL:    target,
		Headers: map[string]string{
			"Authorization": authorizationValue(t.access.AuthHeaderMode, token),
			"Accept":        "application/json",
		},
		Timeout: t.access.Timeout,
	})
	if err != nil {
		return nil, err
	}
	payload := decodeLenient(response.Body)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &TransportError{
			StatusCode: response.StatusCode,
			Method:     http.MethodGet,
			URL:        target,
			Body:       RenderBody(payload),
		}
	}
	return payload, nil
}

func accessURL(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/"
}

func authorizationValue(mode AuthHeaderMode, token string) string {
	if mode == AuthHeaderModeBearer {
		return "Bearer " + token
	}
	return token
}

func decodeLenient(body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	return decoded
}
