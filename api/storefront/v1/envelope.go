package storefrontv1

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var errNilEnvelope = errors.New("envelope is nil")

// Encode упаковывает сообщение в google.protobuf.Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	envelope := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, envelope); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return envelope, nil
}

// Decode распаковывает конверт в сообщение v.
func Decode(envelope *structpb.Struct, v any) error {
	if envelope == nil {
		return errNilEnvelope
	}
	raw, err := protojson.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
