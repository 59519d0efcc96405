package livecallpb

import (
	"reflect"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestClientRequest_OneofSurvivesEncoding(t *testing.T) {
	tests := []struct {
		name string
		req  *ClientRequest
	}{
		{
			name: "initial info",
			req: NewInitialInfo(&InitialInfo{
				WorkspaceID:         "tenant-1",
				CallID:              "abc",
				CustomerPhoneNumber: "0901234567",
				TypeCall:            "inbound",
				Hotline:             "1900",
				SpeakerID:           "spk",
				Environment:         "dev",
			}),
		},
		{
			name: "play audio",
			req: NewPlayAudio(&PlayAudio{
				SampleRate:   8000,
				SampleWidth:  16,
				NumChannels:  1,
				Duration:     0.128,
				AudioContent: "AAEC",
			}),
		},
		{name: "disconnect", req: NewDisconnect()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.req.MarshalWire()
			if err != nil {
				t.Fatalf("MarshalWire: %v", err)
			}
			var got ClientRequest
			if err := got.UnmarshalWire(b); err != nil {
				t.Fatalf("UnmarshalWire: %v", err)
			}
			if !reflect.DeepEqual(&got, tt.req) {
				t.Errorf("decoded = %+v, want %+v", got, tt.req)
			}
		})
	}
}

func TestSignal_UnknownFieldsKept(t *testing.T) {
	// field 9, a string the gateway does not know about.
	raw := protowire.AppendTag(nil, 9, protowire.BytesType)
	raw = protowire.AppendString(raw, "hold")

	var sig Signal
	if err := sig.UnmarshalWire(raw); err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}
	if sig.EndCall != nil || sig.TransferCall != nil {
		t.Fatalf("expected opaque signal, got %+v", sig)
	}
	if !reflect.DeepEqual(sig.Unknown, raw) {
		t.Errorf("Unknown = %x, want %x", sig.Unknown, raw)
	}

	again, _ := sig.MarshalWire()
	if !reflect.DeepEqual(again, raw) {
		t.Errorf("re-encoded = %x, want %x", again, raw)
	}
}

func TestServerResponse_TransferTargetsInOrder(t *testing.T) {
	resp := &ServerResponse{
		Status: true,
		Signal: &Signal{TransferCall: &TransferCall{
			CallID:              "abc",
			CustomerPhoneNumber: "0901",
			TargetStaff: []*TargetStaff{
				{Extension: "101"},
				{SIPNumber: "sip:202@pbx"},
			},
		}},
	}
	b, _ := resp.MarshalWire()

	var got ServerResponse
	if err := got.UnmarshalWire(b); err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}
	if !reflect.DeepEqual(&got, resp) {
		t.Errorf("decoded = %+v, want %+v", got, resp)
	}
}

func TestServerResponse_TruncatedInput(t *testing.T) {
	resp := &ServerResponse{Status: true, Error: &Error{ErrorCode: 500, Message: "boom"}}
	b, _ := resp.MarshalWire()

	var got ServerResponse
	if err := got.UnmarshalWire(b[:len(b)-2]); err == nil {
		t.Fatal("expected error for truncated message")
	}
}

func TestCodec_FallsBackToProto(t *testing.T) {
	c := Codec{}
	if c.Name() != "proto" {
		t.Fatalf("Name = %q", c.Name())
	}

	in := &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := &grpc_health_v1.HealthCheckResponse{}
	if err := c.Unmarshal(b, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", out.GetStatus())
	}

	if _, err := c.Marshal(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
