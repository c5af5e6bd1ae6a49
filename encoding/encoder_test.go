package encoding_test

import (
	"testing"

	"github.com/effective-security/patchwork/encoding"
	"github.com/effective-security/patchwork/feedback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFromFilename(t *testing.T) {
	assert.Equal(t, encoding.ModeYAML, encoding.ModeFromFilename("fb.yaml"))
	assert.Equal(t, encoding.ModeYAML, encoding.ModeFromFilename("/tmp/FB.YML"))
	assert.Equal(t, encoding.ModeTOML, encoding.ModeFromFilename("fb.toml"))
	assert.Equal(t, encoding.ModeJSON, encoding.ModeFromFilename("fb.json"))
	assert.Equal(t, encoding.ModeJSON, encoding.ModeFromFilename("-"))
}

func TestNewEncoder(t *testing.T) {
	_, err := encoding.NewEncoder("xml", feedback.Request{})
	assert.EqualError(t, err, "unsupported format: xml")

	for _, mode := range encoding.Modes {
		t.Run(mode, func(t *testing.T) {
			enc, err := encoding.NewEncoder(mode, feedback.Request{})
			require.NoError(t, err)

			example, err := enc.Example()
			require.NoError(t, err)

			var args map[string]any
			require.NoError(t, enc.Unmarshal(example, &args))

			req := feedback.FromArguments(args)
			assert.NotEmpty(t, req.WhatINeeded)
			assert.NotEmpty(t, req.WhatITried)
			assert.Len(t, req.ToolsAvailable, 2)
			assert.NoError(t, req.Validate())
		})
	}
}
