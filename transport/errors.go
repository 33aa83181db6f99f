package transport

import (
	"github.com/goliatone/go-dataspace/core"
	goerrors "github.com/goliatone/go-errors"
)

// Transport errors cover failures to execute a request at all. A response
// with any status code is not an error at this layer.
func newError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return newError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func textCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return core.ErrorTransportFailed
	default:
		return core.ErrorInternal
	}
}
