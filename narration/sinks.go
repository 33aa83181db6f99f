package narration

import (
	"context"
	"sync"

	"github.com/goliatone/go-dataspace/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger forwards narration to a structured logger at info level, or warn
// and error for the matching channels.
type Logger struct {
	logger core.Logger
}

func NewLogger(logger core.Logger) *Logger {
	return &Logger{logger: glog.Ensure(logger)}
}

func (l *Logger) Notify(ctx context.Context, narration core.Narration) {
	if l == nil {
		return
	}
	logger := l.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{"channel", string(narration.Channel), "scope", narration.Scope}
	for key, value := range core.RedactSensitiveMap(narration.Fields) {
		args = append(args, key, value)
	}
	switch narration.Channel {
	case core.ChannelError:
		logger.Error(narration.Message, args...)
	case core.ChannelWarn:
		logger.Warn(narration.Message, args...)
	default:
		logger.Info(narration.Message, args...)
	}
}

// Multi fans narration out to every sink in order.
type Multi []core.Notifier

func (m Multi) Notify(ctx context.Context, narration core.Narration) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, narration)
		}
	}
}

// Recorder keeps narration in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []core.Narration
}

func (r *Recorder) Notify(_ context.Context, narration core.Narration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, narration)
}

func (r *Recorder) Lines() []core.Narration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Narration(nil), r.lines...)
}

var (
	_ core.Notifier = (*Logger)(nil)
	_ core.Notifier = Multi(nil)
	_ core.Notifier = (*Recorder)(nil)
)
