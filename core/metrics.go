package core

import (
	"context"
	"time"
)

const (
	MetricStageTotal    = "dataspace.stage.total"
	MetricStageDuration = "dataspace.stage.duration_ms"
)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func recordStageMetrics(ctx context.Context, metrics MetricsRecorder, stage Stage, consumerID string, startedAt time.Time, err error) {
	if metrics == nil {
		return
	}
	tags := map[string]string{
		"stage":       string(stage),
		"consumer_id": consumerID,
		"status":      "success",
	}
	if err != nil {
		tags["status"] = "failure"
	}
	metrics.IncCounter(ctx, MetricStageTotal, 1, cloneTags(tags))
	metrics.ObserveHistogram(ctx, MetricStageDuration, float64(time.Since(startedAt).Milliseconds()), cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
