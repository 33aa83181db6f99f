package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorTransportFailed = "DATASPACE_TRANSPORT_FAILED"
	ErrorPollTimeout     = "DATASPACE_POLL_TIMEOUT"
	ErrorProtocolShape   = "DATASPACE_PROTOCOL_SHAPE"
	ErrorBadInput        = "DATASPACE_BAD_INPUT"
	ErrorNotFound        = "DATASPACE_NOT_FOUND"
	ErrorInternal        = "DATASPACE_INTERNAL_ERROR"
)

const (
	ReasonEmptyCatalog          = "empty catalog"
	ReasonMalformedDataset      = "malformed dataset"
	ReasonMalformedResponse     = "response is not a JSON object"
	ReasonMissingID             = "missing @id"
	ReasonMissingAgreement      = "missing contractAgreementId"
	ReasonIncompleteCredential  = "incomplete credential"
	maxRenderedBodyBytes        = 2048
	renderedBodyTruncatedSuffix = "...(truncated)"
)

// TransportError reports a non-2xx response from a management API or a
// protected resource. Body carries the raw response text.
type TransportError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("HTTP %d %s %s", e.StatusCode, e.Method, e.URL)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += "\n" + renderText(body)
	}
	return msg
}

func (e *TransportError) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

func (e *TransportError) ToServiceError() *goerrors.Error {
	return e.serviceError("")
}

func (e *TransportError) serviceError(stage Stage) *goerrors.Error {
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	textCode := ErrorTransportFailed
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		category, code = goerrors.CategoryBadInput, http.StatusBadRequest
	case http.StatusUnauthorized:
		category, code = goerrors.CategoryAuth, http.StatusUnauthorized
	case http.StatusForbidden:
		category, code = goerrors.CategoryAuthz, http.StatusForbidden
	case http.StatusNotFound:
		category, code, textCode = goerrors.CategoryNotFound, http.StatusNotFound, ErrorNotFound
	case http.StatusConflict:
		category, code = goerrors.CategoryConflict, http.StatusConflict
	case http.StatusTooManyRequests:
		category, code = goerrors.CategoryRateLimit, http.StatusTooManyRequests
	}
	return goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(stageMetadata(stage, map[string]any{
			"status_code": e.StatusCode,
			"method":      strings.TrimSpace(e.Method),
			"url":         strings.TrimSpace(e.URL),
		}))
}

// TimeoutError reports an exhausted poll budget together with the last
// observation, so the caller can tell a stuck state from a missing resource.
type TimeoutError struct {
	URL      string
	Wanted   string
	Attempts int
	Elapsed  time.Duration
	LastBody any
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf(
		"timed out waiting for %s at %s after %d attempts; last response: %s",
		e.Wanted,
		e.URL,
		e.Attempts,
		RenderBody(e.LastBody),
	)
}

func (e *TimeoutError) ToServiceError() *goerrors.Error {
	return e.serviceError("")
}

func (e *TimeoutError) serviceError(stage Stage) *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(ErrorPollTimeout).
		WithMetadata(stageMetadata(stage, map[string]any{
			"url":        strings.TrimSpace(e.URL),
			"wanted":     strings.TrimSpace(e.Wanted),
			"attempts":   e.Attempts,
			"elapsed_ms": e.Elapsed.Milliseconds(),
		}))
}

// ProtocolShapeError reports a well-formed response that lacks a field the
// saga needs to continue.
type ProtocolShapeError struct {
	Stage    Stage
	Reason   string
	Document any
}

func (e *ProtocolShapeError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("protocol shape: %s", e.Reason)
	if e.Stage != "" {
		msg = fmt.Sprintf("protocol shape (%s): %s", e.Stage, e.Reason)
	}
	if e.Document != nil {
		msg += "; document: " + RenderBody(e.Document)
	}
	return msg
}

func (e *ProtocolShapeError) ToServiceError() *goerrors.Error {
	return e.serviceError(e.Stage)
}

func (e *ProtocolShapeError) serviceError(stage Stage) *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorProtocolShape).
		WithMetadata(stageMetadata(stage, map[string]any{
			"reason": e.Reason,
		}))
}

// StageError attributes a failure to the saga stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("core: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailedStage returns the stage recorded on err, or "" when err did not come
// from a saga stage.
func FailedStage(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

func AsTransportError(err error) (*TransportError, bool) {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	transportErr, ok := AsTransportError(err)
	return ok && transportErr.NotFound()
}

func newShapeError(stage Stage, reason string, document any) *ProtocolShapeError {
	return &ProtocolShapeError{Stage: stage, Reason: reason, Document: redactSensitiveValue(cloneValue(document))}
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

// MapError converts any error produced by this module into a go-errors
// envelope with a category, HTTP code and text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.serviceError(FailedStage(err))
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.serviceError(FailedStage(err))
	}
	var shapeErr *ProtocolShapeError
	if errors.As(err, &shapeErr) {
		stage := FailedStage(err)
		if stage == "" {
			stage = shapeErr.Stage
		}
		return shapeErr.serviceError(stage)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func stageMetadata(stage Stage, metadata map[string]any) map[string]any {
	if stage != "" {
		metadata["failed_stage"] = string(stage)
	}
	return metadata
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryExternal:
		return ErrorTransportFailed
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RenderBody renders a decoded body for diagnostics with sensitive keys
// redacted and long bodies truncated.
func RenderBody(body any) string {
	switch typed := body.(type) {
	case nil:
		return "<empty>"
	case string:
		if strings.TrimSpace(typed) == "" {
			return "<empty>"
		}
		return renderText(typed)
	case []byte:
		return RenderBody(string(typed))
	}
	encoded, err := json.Marshal(redactSensitiveValue(body))
	if err != nil {
		return truncateRendered(fmt.Sprint(body))
	}
	return truncateRendered(string(encoded))
}

// renderText redacts text that still holds a JSON document, such as a body
// served without a JSON content type.
func renderText(value string) string {
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		switch decoded.(type) {
		case map[string]any, []any:
			if encoded, err := json.Marshal(redactSensitiveValue(decoded)); err == nil {
				return truncateRendered(string(encoded))
			}
		}
	}
	return truncateRendered(value)
}

func truncateRendered(value string) string {
	if len(value) <= maxRenderedBodyBytes {
		return value
	}
	cut := maxRenderedBodyBytes
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + renderedBodyTruncatedSuffix
}
