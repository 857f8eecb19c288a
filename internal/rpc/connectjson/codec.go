package connectjson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bufbuild/connect-go"
)

// Codec encodes session frames as JSON for Connect streams. Frames with
// fields the peer does not know are rejected so protocol drift surfaces as
// an invalid-argument error instead of a silently dropped answer.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode frame: trailing data")
	}
	return nil
}

var _ connect.Codec = (*Codec)(nil)
