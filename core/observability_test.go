package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestObserveStage_LogsSuccessAndFailure(t *testing.T) {
	logger := newCaptureLogger()
	startedAt := time.Now()

	if err := observeStage(context.Background(), logger, StageCatalog, startedAt, nil, map[string]any{
		"consumer_id": "consumer-1",
	}); err != nil {
		t.Fatalf("expected nil on success, got %v", err)
	}
	cause := errors.New("connection refused")
	err := observeStage(context.Background(), logger, StageNegotiation, startedAt, cause, map[string]any{
		"consumer_id": "consumer-1",
	})
	if FailedStage(err) != StageNegotiation || !errors.Is(err, cause) {
		t.Fatalf("expected stage error wrapping cause, got %v", err)
	}

	records := logger.snapshot()
	if !hasLog(records, "info", "catalog succeeded", StageCatalog) {
		t.Fatalf("expected catalog success log, got %#v", records)
	}
	if !hasLog(records, "error", "negotiation failed", StageNegotiation) {
		t.Fatalf("expected negotiation failure log, got %#v", records)
	}
	for _, record := range records {
		if record.fields["consumer_id"] != "consumer-1" {
			t.Fatalf("expected consumer id field on %q", record.msg)
		}
	}
}

func TestObserveStage_NeverLogsFullTokens(t *testing.T) {
	logger := newCaptureLogger()
	token := "eyJhbGciOiJSUzI1NiJ9.secret-payload"

	_ = observeStage(context.Background(), logger, StageCredential, time.Now(), nil, map[string]any{
		"authorization":     token,
		"token_fingerprint": TokenFingerprint(token),
	})

	for _, record := range logger.snapshot() {
		for key, value := range record.fields {
			if strings.Contains(fmt.Sprint(value), token) {
				t.Fatalf("expected %q to be redacted in %q", key, record.msg)
			}
		}
		if record.fields["token_fingerprint"] != TokenFingerprint(token) {
			t.Fatalf("expected fingerprint to stay visible")
		}
	}
}

func TestRecordStageMetrics_TagsStageAndStatus(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	startedAt := time.Now()

	recordStageMetrics(context.Background(), metrics, StageTransfer, "consumer-2", startedAt, nil)
	recordStageMetrics(context.Background(), metrics, StageAccess, "consumer-2", startedAt, errors.New("HTTP 403"))
	recordStageMetrics(context.Background(), nil, StageAccess, "consumer-2", startedAt, nil)

	if !hasCounter(metrics.counters, MetricStageTotal, StageTransfer, "success") {
		t.Fatalf("expected transfer success counter, got %#v", metrics.counters)
	}
	if !hasCounter(metrics.counters, MetricStageTotal, StageAccess, "failure") {
		t.Fatalf("expected access failure counter, got %#v", metrics.counters)
	}
	if len(metrics.histograms) != 2 || metrics.histograms[0].name != MetricStageDuration {
		t.Fatalf("expected two duration observations, got %#v", metrics.histograms)
	}
	if metrics.counters[0].tags["consumer_id"] != "consumer-2" {
		t.Fatalf("expected consumer tag")
	}
}

func TestNarrator_RedactsFields(t *testing.T) {
	recorder := &recordingNotifier{}
	n := narrator{notifier: recorder, scope: "consumer-1"}

	n.sayWith(context.Background(), ChannelConsumer, map[string]any{"authorization": "tok-1"}, "credential %s", DescribeToken("tok-1"))
	n.say(context.Background(), ChannelConnector, "transfer %s started", "tp-1")
	narrator{}.say(context.Background(), ChannelConnector, "dropped")

	if len(recorder.items) != 2 {
		t.Fatalf("expected 2 narration lines, got %d", len(recorder.items))
	}
	first := recorder.items[0]
	if first.Scope != "consumer-1" || first.Channel != ChannelConsumer {
		t.Fatalf("unexpected narration %#v", first)
	}
	if strings.Contains(fmt.Sprint(first.Fields["authorization"]), "tok-1") || strings.Contains(first.Message, "tok-1") {
		t.Fatalf("expected token to stay out of narration, got %#v", first)
	}
	if recorder.items[1].Message != "transfer tp-1 started" {
		t.Fatalf("unexpected message %q", recorder.items[1].Message)
	}
}

func TestDescribePayload(t *testing.T) {
	cases := map[string]any{
		"empty":            nil,
		"array(len=2)":     []any{1, 2},
		"object(keys=a,b)": map[string]any{"b": 1, "a": 2},
		"text(len=5)":      "hello",
	}
	for want, payload := range cases {
		if got := DescribePayload(payload); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Narration
}

func (r *recordingNotifier) Notify(_ context.Context, narration Narration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, narration)
}

func hasCounter(counters []capturedCounter, name string, stage Stage, status string) bool {
	for _, counter := range counters {
		if counter.name == name && counter.tags["stage"] == string(stage) && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(records []capturedLog, level string, msg string, stage Stage) bool {
	for _, record := range records {
		if record.level == level && record.msg == msg && record.fields["stage"] == string(stage) {
			return true
		}
	}
	return false
}
