package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// observeStage logs the outcome of one stage and wraps a failure with the
// stage it came from.
func observeStage(
	ctx context.Context,
	logger Logger,
	stage Stage,
	startedAt time.Time,
	err error,
	fields map[string]any,
) error {
	status := "success"
	if err != nil {
		status = "failure"
	}
	contextFields := cloneFields(fields)
	contextFields["stage"] = string(stage)
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		logWithLevel(ctx, logger, "error", string(stage)+" failed", contextFields)
		return &StageError{Stage: stage, Err: err}
	}
	logWithLevel(ctx, logger, "info", string(stage)+" succeeded", contextFields)
	return nil
}

func logWithLevel(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	redacted := RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(redacted)
	}
	args := flattenFields(redacted)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

// narrator scopes narration lines to one party.
type narrator struct {
	notifier Notifier
	scope    string
}

func (n narrator) say(ctx context.Context, channel Channel, format string, args ...any) {
	n.sayWith(ctx, channel, nil, format, args...)
}

func (n narrator) sayWith(ctx context.Context, channel Channel, fields map[string]any, format string, args ...any) {
	if n.notifier == nil {
		return
	}
	n.notifier.Notify(ctx, Narration{
		Channel: channel,
		Scope:   n.scope,
		Message: fmt.Sprintf(format, args...),
		Fields:  RedactSensitiveMap(fields),
	})
}

// DescribePayload summarizes a decoded payload for narration: the length of
// an array, the sorted keys of an object or the size of a text body.
func DescribePayload(payload any) string {
	switch typed := payload.(type) {
	case nil:
		return "empty"
	case []any:
		return fmt.Sprintf("array(len=%d)", len(typed))
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return fmt.Sprintf("object(keys=%s)", strings.Join(keys, ","))
	case string:
		return fmt.Sprintf("text(len=%d)", len(typed))
	default:
		return fmt.Sprintf("%T", payload)
	}
}
