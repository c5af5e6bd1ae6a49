// Package encoding reads and writes feedback documents in JSON, YAML or TOML.
package encoding

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/patchwork/encoding/json"
	tomlenc "github.com/effective-security/patchwork/encoding/toml"
	yamlenc "github.com/effective-security/patchwork/encoding/yaml"
)

type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
	// Example returns a document with an example of the type the encoder was created for
	Example() ([]byte, error)
}

type Mode = string

const (
	ModeJSON Mode = "json"
	ModeYAML Mode = "yaml"
	ModeTOML Mode = "toml"
)

// Modes lists the supported modes
var Modes = []Mode{ModeJSON, ModeYAML, ModeTOML}

// NewEncoder returns encoder for the mode,
// req is the type used for examples.
func NewEncoder(mode Mode, req any) (Encoder, error) {
	switch strings.ToLower(mode) {
	case ModeJSON, "":
		return jsonenc.NewEncoder(req), nil
	case ModeYAML, "yml":
		return yamlenc.NewEncoder(req).WithCommentStyle(yamlenc.HeadComment), nil
	case ModeTOML:
		return tomlenc.NewEncoder(req), nil
	default:
		return nil, errors.Errorf("unsupported format: %s", mode)
	}
}

// ModeFromFilename returns the mode by the file extension,
// JSON is returned for unknown extensions.
func ModeFromFilename(name string) Mode {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "yaml", "yml":
		return ModeYAML
	case "toml":
		return ModeTOML
	default:
		return ModeJSON
	}
}

var (
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
)
