package livecallpb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// WireMessage is implemented by every message in this package.
type WireMessage interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire([]byte) error
}

// Codec is a grpc encoding.Codec for the LiveCall messages. It registers
// under the "proto" content-subtype so peers using generated protobuf code
// interoperate, and falls back to proto.Marshal for real proto messages such
// as the gRPC health service.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case WireMessage:
		return m.MarshalWire()
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("livecallpb: cannot marshal %T", v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case WireMessage:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("livecallpb: cannot unmarshal into %T", v)
}
