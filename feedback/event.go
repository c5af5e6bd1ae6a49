package feedback

// Event is the payload sent to the collection service.
// All fields are always present.
type Event struct {
	ServerSlug     string   `json:"server_slug"`
	WhatINeeded    string   `json:"what_i_needed"`
	WhatITried     string   `json:"what_i_tried"`
	GapType        GapType  `json:"gap_type"`
	Suggestion     string   `json:"suggestion"`
	UserGoal       string   `json:"user_goal"`
	Resolution     string   `json:"resolution"`
	ToolsAvailable []string `json:"tools_available"`
	AgentModel     string   `json:"agent_model"`
	SessionID      string   `json:"session_id"`
	ClientType     string   `json:"client_type"`
}

// NewEvent builds the payload from the request,
// the gap type defaults to "other", the tool list is never null.
func NewEvent(req *Request, serverSlug string) *Event {
	if req == nil {
		req = &Request{}
	}
	gap := req.GapType
	if gap == "" {
		gap = GapOther
	}
	tools := []string(req.ToolsAvailable)
	if tools == nil {
		tools = []string{}
	}

	return &Event{
		ServerSlug:     serverSlug,
		WhatINeeded:    req.WhatINeeded,
		WhatITried:     req.WhatITried,
		GapType:        gap,
		Suggestion:     req.Suggestion,
		UserGoal:       req.UserGoal,
		Resolution:     string(req.Resolution),
		ToolsAvailable: tools,
		AgentModel:     req.AgentModel,
		SessionID:      req.SessionID,
		ClientType:     req.ClientType,
	}
}
