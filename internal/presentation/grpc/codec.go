package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// The message types in proto.go are plain structs, so calls are carried with
// a JSON codec selected by the "application/grpc+json" content subtype.
func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
