// Package narration renders human-facing progress lines.
package narration

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/goliatone/go-dataspace/core"
)

// Console writes one tagged line per narration, e.g.
//
//	[consumer] [consumer-1] negotiation n-1 requested
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	showFields bool
	tags       map[core.Channel]*color.Color
}

type ConsoleOption func(*Console)

// WithFields appends the (already redacted) narration fields to each line.
func WithFields(enabled bool) ConsoleOption {
	return func(c *Console) {
		c.showFields = enabled
	}
}

// WithoutColor disables ANSI colors regardless of the terminal.
func WithoutColor() ConsoleOption {
	return func(c *Console) {
		for _, tag := range c.tags {
			tag.DisableColor()
		}
	}
}

func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	if out == nil {
		out = os.Stdout
	}
	console := &Console{
		out: out,
		tags: map[core.Channel]*color.Color{
			core.ChannelProvider:  color.New(color.FgMagenta, color.Bold),
			core.ChannelConsumer:  color.New(color.FgCyan, color.Bold),
			core.ChannelConnector: color.New(color.FgBlue),
			core.ChannelWarn:      color.New(color.FgYellow, color.Bold),
			core.ChannelError:     color.New(color.FgRed, color.Bold),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(console)
		}
	}
	return console
}

func (c *Console) Notify(_ context.Context, narration core.Narration) {
	if c == nil {
		return
	}
	line := c.render(narration)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

func (c *Console) render(narration core.Narration) string {
	channel := narration.Channel
	if channel == "" {
		channel = core.ChannelConsumer
	}
	tag := "[" + string(channel) + "]"
	if painter, ok := c.tags[channel]; ok {
		tag = painter.Sprint(tag)
	}
	parts := []string{tag}
	if scope := strings.TrimSpace(narration.Scope); scope != "" {
		parts = append(parts, "["+scope+"]")
	}
	parts = append(parts, narration.Message)
	if c.showFields && len(narration.Fields) > 0 {
		parts = append(parts, renderFields(narration.Fields))
	}
	return strings.Join(parts, " ")
}

func renderFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, fields[key]))
	}
	return "(" + strings.Join(pairs, " ") + ")"
}

var _ core.Notifier = (*Console)(nil)
