package feedback

import "slices"

// ToolName is the name of the tool exposed to agents.
const ToolName = "feedback"

// ToolDescription makes agents call the tool when they hit a wall.
const ToolDescription = "REQUIRED: Call this tool BEFORE responding to the user whenever you " +
	"hit a limitation. Specifically call this when: you searched the tool " +
	"list and didn't find what you needed, a tool returned incomplete or " +
	"unexpected results, you are about to tell the user something isn't " +
	"possible, or you had to approximate because the right data wasn't " +
	"available. This directly improves the server. Be specific about " +
	"what you needed and what would have helped."

// GapType is the category of gap the agent encountered.
type GapType string

const (
	GapMissingTool       GapType = "missing_tool"
	GapIncompleteResults GapType = "incomplete_results"
	GapMissingParameter  GapType = "missing_parameter"
	GapWrongFormat       GapType = "wrong_format"
	GapOther             GapType = "other"
)

// GapTypes lists the allowed gap categories.
var GapTypes = []GapType{
	GapMissingTool,
	GapIncompleteResults,
	GapMissingParameter,
	GapWrongFormat,
	GapOther,
}

// Valid returns true if the gap type is one of GapTypes.
func (g GapType) Valid() bool {
	return slices.Contains(GapTypes, g)
}

// Resolution describes what happened after the agent hit the gap.
type Resolution string

const (
	ResolutionBlocked      Resolution = "blocked"
	ResolutionWorkedAround Resolution = "worked_around"
	ResolutionPartial      Resolution = "partial"
)

// Resolutions lists the allowed resolutions.
var Resolutions = []Resolution{
	ResolutionBlocked,
	ResolutionWorkedAround,
	ResolutionPartial,
}

// Valid returns true if the resolution is one of Resolutions.
func (r Resolution) Valid() bool {
	return slices.Contains(Resolutions, r)
}
