package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/patchwork/callbacks"
	"github.com/effective-security/patchwork/internal/logcapture"
	"github.com/effective-security/patchwork/mocks/mocktools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "callbacks_test")

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "" }
func (f *fakeTool) Parameters() any     { return nil }
func (f *fakeTool) Call(context.Context, string) (string, error) {
	return "", nil
}

func TestPrinter(t *testing.T) {
	ctx := context.Background()
	tool := &fakeTool{name: "test-tool"}

	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)
	cb.OnToolStart(ctx, tool, "test input")
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	cb.OnToolError(ctx, tool, "test input", errors.New("test error"))

	res := buf.String()
	assert.Contains(t, res, "Tool Start: test-tool")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Tool End: test-tool")
	assert.Contains(t, res, "Output: test output")
	assert.Contains(t, res, "Tool Error: test-tool: test error")

	buf.Reset()
	cb = callbacks.NewPrinter(&buf, callbacks.ModeDefault)
	cb.OnToolStart(ctx, tool, "test input")
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	assert.Equal(t, "Tool Start: test-tool\nTool End: test-tool\n", buf.String())
}

func TestPackageLogger(t *testing.T) {
	logs := logcapture.Capture(t)
	ctx := context.Background()
	tool := &fakeTool{name: "feedback"}

	cb := callbacks.NewPackageLogger(logger)
	cb.OnToolStart(ctx, tool, "in")
	cb.OnToolEnd(ctx, tool, "in", "out")
	cb.OnToolError(ctx, tool, "in", errors.New("boom"))

	out := logs.String()
	assert.Contains(t, out, "tool_start")
	assert.Contains(t, out, "tool_end")
	assert.Contains(t, out, "tool_error")
	assert.Contains(t, out, "boom")
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	tool := &fakeTool{name: "feedback"}
	ctrl := gomock.NewController(t)

	m1 := mocktools.NewMockCallback(ctrl)
	m2 := mocktools.NewMockCallback(ctrl)
	for _, m := range []*mocktools.MockCallback{m1, m2} {
		m.EXPECT().OnToolStart(ctx, tool, "in")
		m.EXPECT().OnToolEnd(ctx, tool, "in", "out")
		m.EXPECT().OnToolError(ctx, tool, "in", gomock.Any())
	}

	f := callbacks.NewFanout(m1, callbacks.NewNoop())
	f.Add(m2)
	f.OnToolStart(ctx, tool, "in")
	f.OnToolEnd(ctx, tool, "in", "out")
	f.OnToolError(ctx, tool, "in", errors.New("boom"))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	tool := &fakeTool{name: "feedback"}

	s := callbacks.NewStats()
	s.OnToolStart(ctx, tool, "")
	s.OnToolEnd(ctx, tool, "", "")
	s.OnToolStart(ctx, tool, "")
	s.OnToolError(ctx, tool, "", errors.New("x"))

	s.OnToolStart(ctx, &fakeTool{name: "search"}, "")
	s.OnToolEnd(ctx, &fakeTool{name: "search"}, "", "")

	assert.Equal(t, callbacks.ToolStats{Calls: 2, Succeeded: 1, Failed: 1}, s.Get("feedback"))
	assert.Equal(t, callbacks.ToolStats{Calls: 1, Succeeded: 1}, s.Get("search"))
	assert.Equal(t, callbacks.ToolStats{}, s.Get("unknown"))
	assert.Equal(t, map[string]callbacks.ToolStats{
		"feedback": {Calls: 2, Succeeded: 1, Failed: 1},
		"search":   {Calls: 1, Succeeded: 1},
	}, s.All())
}
