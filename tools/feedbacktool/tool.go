// Package feedbacktool provides the "feedback" tool that agents call when they hit a capability gap.
//
// The tool can be registered with an LLM agent framework as tools.ITool,
// with an MCP server as tools.IMCPTool, or dispatched by the host directly
// with Definition and Handle.
package feedbacktool

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/client"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/feedback"
	"github.com/effective-security/patchwork/pkg/llmutils"
	"github.com/effective-security/patchwork/pkg/schema"
	"github.com/effective-security/patchwork/tools"
	"github.com/invopop/jsonschema"
	mcp "github.com/metoro-io/mcp-golang"
)

// Result represents the tool output.
type Result struct {
	Message    string `json:"message" yaml:"message"`
	Delivered  bool   `json:"delivered" yaml:"delivered"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
}

func (r *Result) String() string {
	return r.Message
}

// Definition is the tool definition in the MCP "tools/list" form.
type Definition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema" yaml:"inputSchema"`
}

// Tool sends the agent feedback to the collection service
type Tool struct {
	name        string
	description string
	funcParams  *jsonschema.Schema

	client   *client.Client
	opts     []client.Option
	callback tools.Callback
}

// ensure Tool implements the tools interfaces
var (
	_ tools.Tool[feedback.Request, Result] = (*Tool)(nil)
	_ tools.MCPTool[feedback.Request]      = (*Tool)(nil)
)

// New returns the feedback tool.
// The options are applied to every delivery.
func New(c *client.Client, opts ...client.Option) (*Tool, error) {
	if c == nil {
		return nil, errors.New("client is required")
	}

	sc, err := schema.New(reflect.TypeOf(feedback.Request{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Tool{
		name:        feedback.ToolName,
		description: feedback.ToolDescription,
		funcParams:  sc.Parameters,
		client:      c,
		opts:        opts,
	}, nil
}

// WithCallback sets the callback notified on every call.
func (t *Tool) WithCallback(cb tools.Callback) *Tool {
	t.callback = cb
	return t
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

// Definition returns the tool definition for hosts with their own dispatcher.
func (t *Tool) Definition() *Definition {
	return &Definition{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.funcParams,
	}
}

// Run delivers the feedback.
// Delivery problems are reported in the Result, not as error.
func (t *Tool) Run(ctx context.Context, req *feedback.Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("invalid request: nil")
	}

	t.onStart(ctx, llmutils.ToJSON(req))
	res := t.client.Deliver(ctx, req, t.opts...)
	out := &Result{
		Message:    client.Message(res),
		Delivered:  res.Outcome == delivery.Delivered,
		StatusCode: res.StatusCode,
	}
	t.onEnd(ctx, llmutils.ToJSON(req), out.Message)
	return out, nil
}

// Call parses the JSON input, which may be surrounded by text or code fences,
// and returns the message for the agent.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	req, err := parseInput(input)
	if err != nil {
		if t.callback != nil {
			t.callback.OnToolError(ctx, t, input, err)
		}
		return "", err
	}
	out, err := t.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// RegisterMCP registers the tool with the MCP server.
func (t *Tool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	err := registrator.RegisterTool(t.name, t.description, t.RunMCP)
	if err != nil {
		return errors.Wrapf(err, "failed to register tool: %s", t.name)
	}
	return nil
}

// RunMCP is the MCP handler of the tool.
func (t *Tool) RunMCP(ctx context.Context, req feedback.Request) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, &req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.Message)), nil
}

// Handle delivers the loosely typed arguments of a tool call,
// and returns the message for the agent.
func (t *Tool) Handle(ctx context.Context, args map[string]any) string {
	req := feedback.FromArguments(args)
	out, err := t.Run(ctx, req)
	if err != nil {
		return err.Error()
	}
	return out.Message
}

func (t *Tool) onStart(ctx context.Context, input string) {
	if t.callback != nil {
		t.callback.OnToolStart(ctx, t, input)
	}
}

func (t *Tool) onEnd(ctx context.Context, input, output string) {
	if t.callback != nil {
		t.callback.OnToolEnd(ctx, t, input, output)
	}
}

func parseInput(input string) (*feedback.Request, error) {
	bs := llmutils.CleanJSON(llmutils.BytesTrimBackticks([]byte(input)))
	if len(bs) == 0 || bs[0] != '{' {
		return nil, errors.WithStack(tools.ErrFailedUnmarshalInput)
	}

	var req feedback.Request
	if err := json.Unmarshal(bs, &req); err == nil {
		return &req, nil
	}

	// values of unexpected types, such as numbers for strings
	var args map[string]any
	if err := ljson.Unmarshal(bs, &args); err != nil {
		return nil, errors.WithStack(tools.ErrFailedUnmarshalInput)
	}
	return feedback.FromArguments(args), nil
}
