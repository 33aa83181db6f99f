package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		code     int
		textCode string
	}{
		{
			name:     "transport 404",
			err:      &TransportError{StatusCode: http.StatusNotFound, Method: "GET", URL: "u"},
			category: goerrors.CategoryNotFound,
			code:     http.StatusNotFound,
			textCode: ErrorNotFound,
		},
		{
			name:     "transport 500",
			err:      &TransportError{StatusCode: http.StatusInternalServerError, Method: "POST", URL: "u"},
			category: goerrors.CategoryExternal,
			code:     http.StatusBadGateway,
			textCode: ErrorTransportFailed,
		},
		{
			name:     "timeout",
			err:      &TimeoutError{URL: "u", Wanted: "state=FINALIZED", Attempts: 60},
			category: goerrors.CategoryExternal,
			code:     http.StatusGatewayTimeout,
			textCode: ErrorPollTimeout,
		},
		{
			name:     "shape",
			err:      newShapeError(StageCatalog, ReasonEmptyCatalog, Document{}),
			category: goerrors.CategoryExternal,
			code:     http.StatusBadGateway,
			textCode: ErrorProtocolShape,
		},
		{
			name:     "bad input",
			err:      badInputError("core: transaction requires a consumer id"),
			category: goerrors.CategoryBadInput,
			code:     http.StatusBadRequest,
			textCode: ErrorBadInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
		})
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if mapped := MapError(errors.New("boom")); mapped == nil || mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected untyped errors to get an envelope, got %#v", mapped)
	}
}

func TestStageError_WrapsTypedCause(t *testing.T) {
	cause := &TransportError{StatusCode: http.StatusConflict, Method: "POST", URL: "http://mgmt/v3/transferprocesses", Body: "agreement invalid"}
	err := fmt.Errorf("runner: %w", &StageError{Stage: StageTransfer, Err: cause})

	if FailedStage(err) != StageTransfer {
		t.Fatalf("expected transfer stage, got %q", FailedStage(err))
	}
	transportErr, ok := AsTransportError(err)
	if !ok || transportErr != cause {
		t.Fatalf("expected errors.As to recover the transport error")
	}
	if !strings.HasPrefix(err.Error(), "runner: core: transfer: HTTP 409 POST") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !strings.Contains(err.Error(), "agreement invalid") {
		t.Fatalf("expected diagnostic body in %q", err.Error())
	}
	if IsNotFound(err) {
		t.Fatalf("expected 409 not to be classified as not found")
	}
	if mapped := MapError(err); mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict category, got %q", mapped.Category)
	}
}

func TestProtocolShapeError_RedactsDocument(t *testing.T) {
	err := newShapeError(StageCredential, ReasonIncompleteCredential, Document{
		"endpoint":      "http://edc-provider:11005/api/public",
		"authorization": "tok-very-secret",
	})
	message := err.Error()
	if strings.Contains(message, "tok-very-secret") {
		t.Fatalf("expected token to be redacted, got %q", message)
	}
	if !strings.Contains(message, "credential") || !strings.Contains(message, ReasonIncompleteCredential) {
		t.Fatalf("expected stage and reason, got %q", message)
	}
}

func TestRenderBody_RedactsJSONText(t *testing.T) {
	text := `{"authorization":"SECRET-TOKEN-123","endpoint":""}`

	rendered := RenderBody(text)
	if strings.Contains(rendered, "SECRET-TOKEN-123") {
		t.Fatalf("expected token to be redacted, got %q", rendered)
	}
	if !strings.Contains(rendered, TokenFingerprint("SECRET-TOKEN-123")) {
		t.Fatalf("expected fingerprint to remain, got %q", rendered)
	}
	timeout := &TimeoutError{URL: "edr", Wanted: "fields authorization,endpoint", Attempts: 2, LastBody: text}
	if strings.Contains(timeout.Error(), "SECRET-TOKEN-123") {
		t.Fatalf("expected timeout message without the token, got %q", timeout.Error())
	}
	transportErr := &TransportError{StatusCode: http.StatusBadRequest, Method: "GET", URL: "edr", Body: text}
	if strings.Contains(transportErr.Error(), "SECRET-TOKEN-123") {
		t.Fatalf("expected transport message without the token, got %q", transportErr.Error())
	}
	if got := RenderBody("agreement invalid"); got != "agreement invalid" {
		t.Fatalf("expected plain text verbatim, got %q", got)
	}
}

func TestRenderBody_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("x", maxRenderedBodyBytes-1) + strings.Repeat("é", 4)

	rendered := RenderBody(long)
	if !utf8.ValidString(rendered) {
		t.Fatalf("expected valid UTF-8 after truncation")
	}
	if !strings.HasSuffix(rendered, renderedBodyTruncatedSuffix) {
		t.Fatalf("expected truncation suffix")
	}
	if len(strings.TrimSuffix(rendered, renderedBodyTruncatedSuffix)) != maxRenderedBodyBytes-1 {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(rendered))
	}
}

func TestRenderBody_TruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("x", maxRenderedBodyBytes+10)
	rendered := RenderBody(long)
	if !strings.HasSuffix(rendered, renderedBodyTruncatedSuffix) {
		t.Fatalf("expected truncation suffix")
	}
	if RenderBody(nil) != "<empty>" || RenderBody("  ") != "<empty>" {
		t.Fatalf("expected empty marker")
	}
	if got := RenderBody([]any{Document{"message": "missing"}}); got != `[{"message":"missing"}]` {
		t.Fatalf("unexpected rendering %q", got)
	}
}
