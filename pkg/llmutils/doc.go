// Package llmutils provides helpers for JSON produced by agents: trimming prose and code fences around a payload, and compact or indented encoding.
package llmutils
