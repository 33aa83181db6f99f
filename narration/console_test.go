package narration

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-dataspace/core"
)

func TestConsole_RendersChannelScopeAndMessage(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, WithoutColor())

	console.Notify(context.Background(), core.Narration{
		Channel: core.ChannelConnector,
		Scope:   "consumer-1",
		Message: "transfer tp-1 started",
	})

	if got := strings.TrimSpace(out.String()); got != "[edc] [consumer-1] transfer tp-1 started" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestConsole_FieldsAreSortedWhenEnabled(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, WithoutColor(), WithFields(true))

	console.Notify(context.Background(), core.Narration{
		Message: "EDR ready",
		Fields:  map[string]any{"token_length": 5, "token_fingerprint": "abc"},
	})

	got := strings.TrimSpace(out.String())
	if got != "[consumer] EDR ready (token_fingerprint=abc token_length=5)" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestMulti_FansOutAndRecorderKeepsOrder(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	sink := Multi{first, nil, second}

	sink.Notify(context.Background(), core.Narration{Message: "one"})
	sink.Notify(context.Background(), core.Narration{Message: "two"})

	for _, recorder := range []*Recorder{first, second} {
		lines := recorder.Lines()
		if len(lines) != 2 || lines[0].Message != "one" || lines[1].Message != "two" {
			t.Fatalf("expected both lines in order, got %#v", lines)
		}
	}
}

type capturedLog struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	entries *[]capturedLog
}

func (l captureLogger) record(level, msg string, args ...any) {
	*l.entries = append(*l.entries, capturedLog{level: level, msg: msg, args: args})
}
func (l captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }
func (l captureLogger) WithContext(context.Context) core.Logger {
	return l
}

func TestLogger_MapsChannelsToLevelsAndRedacts(t *testing.T) {
	entries := []capturedLog{}
	sink := NewLogger(captureLogger{entries: &entries})

	sink.Notify(context.Background(), core.Narration{Channel: core.ChannelWarn, Message: "probe"})
	sink.Notify(context.Background(), core.Narration{
		Channel: core.ChannelError,
		Message: "failed",
		Fields:  map[string]any{"authorization": "tok-secret"},
	})
	sink.Notify(context.Background(), core.Narration{Channel: core.ChannelConsumer, Message: "ok"})

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].level != "warn" || entries[1].level != "error" || entries[2].level != "info" {
		t.Fatalf("unexpected levels %#v", entries)
	}
	for _, arg := range entries[1].args {
		if s, ok := arg.(string); ok && strings.Contains(s, "tok-secret") {
			t.Fatalf("expected token to be redacted, got %q", s)
		}
	}
}
