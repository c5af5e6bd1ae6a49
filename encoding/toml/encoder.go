package toml

import (
	"encoding/json"
	"reflect"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/patchwork/encoding/json"
	"github.com/effective-security/patchwork/pkg/llmutils"
)

type Encoder struct {
	reqType reflect.Type
}

func NewEncoder(req any) *Encoder {
	t := reflect.TypeOf(req)
	return &Encoder{
		reqType: t,
	}
}

// Marshal encodes v with the keys of its JSON representation.
func (e *Encoder) Marshal(v any) ([]byte, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, err
	}
	return toml.Marshal(m)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return toml.Unmarshal(data, ret)
}

func (e *Encoder) Example() ([]byte, error) {
	return e.Marshal(jsonenc.Instance(e.reqType))
}

func toMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var m map[string]any
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, errors.Wrap(err, "expected object")
	}
	return m, nil
}
