package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, resolved := Resolve("dataspace", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("dataspace", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("dataspace", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("dataspace.worker", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}
	jobProvider.GetLogger("dataspace.worker").Info("job picked", "job_id", "dataspace.transaction.consumer")

	captured := providerLogger.lastInfo
	if captured.msg != "job picked" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "job_id" || captured.args[1] != "dataspace.transaction.consumer" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestSlogLoggerWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, "json", "debug")

	withFields := logger.WithFields(map[string]any{"stage": "negotiation", "consumer_id": "consumer-1"})
	withFields.WithContext(context.Background()).Info("negotiation succeeded", "attempts", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json record %q: %v", buf.String(), err)
	}
	if record["msg"] != "negotiation succeeded" || record["level"] != "INFO" {
		t.Fatalf("unexpected record %#v", record)
	}
	if record["stage"] != "negotiation" || record["consumer_id"] != "consumer-1" {
		t.Fatalf("expected fields on record, got %#v", record)
	}
	if record["attempts"] != float64(3) {
		t.Fatalf("expected attempts arg, got %#v", record["attempts"])
	}
}

func TestSlogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, "text", "warn")
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestSlogLoggerFatalExits(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, "text", "info")
	code := -1
	logger.exit = func(c int) { code = c }
	logger.Fatal("boom")
	if code != 1 || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected fatal record and exit 1, got code=%d out=%q", code, buf.String())
	}
}

func TestSlogProviderNamesLoggers(t *testing.T) {
	var buf bytes.Buffer
	provider := NewSlogProvider(NewSlogLogger(&buf, "text", "info"))
	provider.GetLogger("ledger").Info("opened")
	if !strings.Contains(buf.String(), "logger=ledger") {
		t.Fatalf("expected logger name in output, got %q", buf.String())
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
