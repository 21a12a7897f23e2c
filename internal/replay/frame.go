package replay

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeState converts a battle snapshot into a protobuf Struct through its JSON form, so frames
// written by the recorder and frames rebuilt during verification compare field by field.
func EncodeState(state any) (*structpb.Struct, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("state is not an object: %w", err)
	}
	return structpb.NewStruct(fields)
}

// FrameJSON renders a frame for humans.
func FrameJSON(frame *structpb.Struct) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(frame)
}
