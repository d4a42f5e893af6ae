package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
)

// fromStruct decodes a request Struct into dst through its JSON form, so
// request types share their json tags with the HTTP bodies.
func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrValidation, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrValidation, err)
	}
	return nil
}

// toStruct encodes v as a Struct; v must marshal to a JSON object.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
