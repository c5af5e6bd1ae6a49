// Package feedback defines the feedback event reported by agents when they hit a capability gap:
// the tool input accepted from the agent, the normalized payload sent to the collection service,
// and the name and description of the "feedback" tool.
package feedback
