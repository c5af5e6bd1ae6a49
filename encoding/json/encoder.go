package json

import (
	"encoding/json"
	"reflect"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/bububa/ljson"
	"github.com/effective-security/patchwork/pkg/llmutils"
	"github.com/effective-security/patchwork/pkg/schema"
)

type Encoder struct {
	reqType reflect.Type
}

func NewEncoder(req any) *Encoder {
	return &Encoder{
		reqType: reflect.TypeOf(req),
	}
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "\t")
}

// Unmarshal accepts JSON surrounded by text or code fences,
// and values of mismatched types.
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(llmutils.BytesTrimBackticks(bs))
	return ljson.Unmarshal(data, ret)
}

func (e *Encoder) Example() ([]byte, error) {
	return e.Marshal(Instance(e.reqType))
}

// Instance returns a random instance of t,
// created by schema.Faker if t implements it.
func Instance(t reflect.Type) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	tValue := reflect.New(t)
	if f, ok := tValue.Elem().Interface().(schema.Faker); ok {
		return f.Fake()
	}
	instance := tValue.Interface()
	_ = gofakeit.Struct(instance)
	return instance
}
