// Package callbacks provides tools.Callback implementations
// for observing feedback tool calls in a host.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/effective-security/patchwork/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ tools.Callback = (*Noop)(nil)
	_ tools.Callback = (*Printer)(nil)
	_ tools.Callback = (*PackageLogger)(nil)
	_ tools.Callback = (*Fanout)(nil)
	_ tools.Callback = (*Stats)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []tools.Callback
}

func NewFanout(callbacks ...tools.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback tools.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string) {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", input)
	}
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

// Stats counts tool calls per tool name.
// A call that returns output counts as succeeded,
// delivery outcomes of the feedback tool are reported by the metrics.
type Stats struct {
	tools sync.Map // name => *counters
}

type counters struct {
	calls     atomic.Uint32
	succeeded atomic.Uint32
	failed    atomic.Uint32
}

// ToolStats is a snapshot of the counters of a tool
type ToolStats struct {
	Calls     uint32 `json:"calls" yaml:"calls"`
	Succeeded uint32 `json:"succeeded" yaml:"succeeded"`
	Failed    uint32 `json:"failed" yaml:"failed"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) forTool(name string) *counters {
	if c, ok := s.tools.Load(name); ok {
		return c.(*counters)
	}
	c, _ := s.tools.LoadOrStore(name, new(counters))
	return c.(*counters)
}

func (s *Stats) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	s.forTool(tool.Name()).calls.Add(1)
}

func (s *Stats) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	s.forTool(tool.Name()).succeeded.Add(1)
}

func (s *Stats) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	s.forTool(tool.Name()).failed.Add(1)
}

// Get returns the counters of the tool,
// or zero counters if the tool was never called.
func (s *Stats) Get(name string) ToolStats {
	c, ok := s.tools.Load(name)
	if !ok {
		return ToolStats{}
	}
	return c.(*counters).snapshot()
}

// All returns the counters of every tool seen so far.
func (s *Stats) All() map[string]ToolStats {
	res := map[string]ToolStats{}
	s.tools.Range(func(k, v any) bool {
		res[k.(string)] = v.(*counters).snapshot()
		return true
	})
	return res
}

func (c *counters) snapshot() ToolStats {
	return ToolStats{
		Calls:     c.calls.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
}
