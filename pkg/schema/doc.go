// Package schema builds JSON schemas for tool input parameters from Go types, using struct json and jsonschema tags.
package schema
