package agentrpc

import (
	"github.com/go-json-experiment/json"
)

// codec replaces connect's protobuf JSON codec so plain Go structs can be
// used as messages. It registers under the same "json" name.
type codec struct{}

func (codec) Name() string { return "json" }

func (codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
