// Package tools defines the interfaces a tool implements to be registered with a host:
// an LLM agent framework calling tools with JSON input, or an MCP server.
package tools
