package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

// Request is the tool input supplied by the agent.
// Field names are consumed by external tooling and must not change.
type Request struct {
	WhatINeeded    string     `json:"what_i_needed" yaml:"what_i_needed" jsonschema:"description=What capability\\, data\\, or tool were you looking for? Be specific about the action you wanted to perform."`
	WhatITried     string     `json:"what_i_tried" yaml:"what_i_tried" jsonschema:"description=What tools or approaches did you try? Include tool names and brief results."`
	GapType        GapType    `json:"gap_type,omitempty" yaml:"gap_type,omitempty" jsonschema:"description=The category of gap encountered.,enum=missing_tool,enum=incomplete_results,enum=missing_parameter,enum=wrong_format,enum=other,default=other" validate:"omitempty,oneof=missing_tool incomplete_results missing_parameter wrong_format other"`
	Suggestion     string     `json:"suggestion,omitempty" yaml:"suggestion,omitempty" jsonschema:"description=Your idea for what would have helped. Describe the tool\\, parameter\\, or change: including what inputs it would accept and what it would return."`
	UserGoal       string     `json:"user_goal,omitempty" yaml:"user_goal,omitempty" jsonschema:"description=The user's original request or goal that led to discovering this gap."`
	Resolution     Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty" jsonschema:"description=What happened after hitting the gap? 'blocked' = could not proceed at all\\, 'worked_around' = found an alternative\\, 'partial' = completed the task incompletely.,enum=blocked,enum=worked_around,enum=partial" validate:"omitempty,oneof=blocked worked_around partial"`
	ToolsAvailable ToolList   `json:"tools_available,omitempty" yaml:"tools_available,omitempty" jsonschema:"description=List the tool names available on this server that you considered or tried before submitting feedback."`
	AgentModel     string     `json:"agent_model,omitempty" yaml:"agent_model,omitempty" jsonschema:"description=Your model identifier\\, if known (e.g. 'claude-sonnet-4-20250514')."`
	SessionID      string     `json:"session_id,omitempty" yaml:"session_id,omitempty" jsonschema:"description=An identifier for the current conversation or session\\, if available."`
	ClientType     string     `json:"client_type,omitempty" yaml:"client_type,omitempty" jsonschema:"description=The MCP client in use\\, if known (e.g. 'claude-desktop'\\, 'cursor'\\, 'claude-code'\\, 'continue')."`
}

var validate = validator.New()

// Validate checks the enumerated fields.
// The required fields are checked as well, as the schema requires them.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.WhatINeeded) == "" {
		return errors.New("what_i_needed is required")
	}
	if strings.TrimSpace(r.WhatITried) == "" {
		return errors.New("what_i_tried is required")
	}
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(err, "invalid feedback")
	}
	return nil
}

// Fake returns a request populated with random values.
func (r Request) Fake() any {
	return &Request{
		WhatINeeded:    gofakeit.Phrase(),
		WhatITried:     gofakeit.Phrase(),
		GapType:        GapTypes[gofakeit.Number(0, len(GapTypes)-1)],
		Suggestion:     gofakeit.Phrase(),
		UserGoal:       gofakeit.Phrase(),
		Resolution:     Resolutions[gofakeit.Number(0, len(Resolutions)-1)],
		ToolsAvailable: ToolList{gofakeit.Word(), gofakeit.Word()},
		AgentModel:     gofakeit.Word(),
		SessionID:      gofakeit.UUID(),
		ClientType:     gofakeit.RandomString([]string{"claude-desktop", "cursor", "claude-code", "continue"}),
	}
}

// ToolList is a list of tool names.
// Agents may supply the list as a JSON array, as a string holding a JSON array,
// or as a single plain string.
type ToolList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *ToolList) UnmarshalJSON(bs []byte) error {
	bs = bytes.TrimSpace(bs)
	if len(bs) == 0 || bytes.Equal(bs, []byte("null")) {
		*l = nil
		return nil
	}

	if bs[0] == '"' {
		var s string
		if err := json.Unmarshal(bs, &s); err != nil {
			return errors.WithStack(err)
		}
		*l = ParseToolList(s)
		return nil
	}

	var list []any
	if err := json.Unmarshal(bs, &list); err != nil {
		// a single scalar value
		*l = ToolList{strings.Trim(string(bs), `"`)}
		return nil
	}
	*l = fromSlice(list)
	return nil
}

// ParseToolList parses s as a JSON array of names,
// when s is not a JSON array, it is returned as a single-element list.
func ParseToolList(s string) ToolList {
	if llmutils.IsJSONArray(s) {
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return fromSlice(list)
		}
	}
	return ToolList{s}
}

// ToolListFrom converts a loosely typed value to ToolList.
func ToolListFrom(v any) ToolList {
	switch val := v.(type) {
	case nil:
		return nil
	case ToolList:
		return val
	case []string:
		return ToolList(append([]string(nil), val...))
	case []any:
		return fromSlice(val)
	case string:
		return ParseToolList(val)
	default:
		return ToolList{fmt.Sprint(val)}
	}
}

func fromSlice(list []any) ToolList {
	res := make(ToolList, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			res = append(res, s)
		} else if item != nil {
			res = append(res, fmt.Sprint(item))
		}
	}
	return res
}

// Argument names of the feedback tool
const (
	ArgWhatINeeded    = "what_i_needed"
	ArgWhatITried     = "what_i_tried"
	ArgGapType        = "gap_type"
	ArgSuggestion     = "suggestion"
	ArgUserGoal       = "user_goal"
	ArgResolution     = "resolution"
	ArgToolsAvailable = "tools_available"
	ArgAgentModel     = "agent_model"
	ArgSessionID      = "session_id"
	ArgClientType     = "client_type"
)

// FromArguments converts the loosely typed tool arguments to Request.
// Unknown keys are ignored, non-string values are formatted as strings.
func FromArguments(args map[string]any) *Request {
	str := func(key string) string {
		switch v := args[key].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			return fmt.Sprint(v)
		}
	}

	return &Request{
		WhatINeeded:    str(ArgWhatINeeded),
		WhatITried:     str(ArgWhatITried),
		GapType:        GapType(str(ArgGapType)),
		Suggestion:     str(ArgSuggestion),
		UserGoal:       str(ArgUserGoal),
		Resolution:     Resolution(str(ArgResolution)),
		ToolsAvailable: ToolListFrom(args[ArgToolsAvailable]),
		AgentModel:     str(ArgAgentModel),
		SessionID:      str(ArgSessionID),
		ClientType:     str(ArgClientType),
	}
}
