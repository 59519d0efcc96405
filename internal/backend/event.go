package backend

import (
	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/livecallpb"
)

// Event is one backend-to-client event. The concrete types are AudioOutput,
// EndCall, TransferCall, OpaqueSignal and Failure.
type Event interface {
	isEvent()
}

// AudioOutput is synthesized audio from the backend, already base64-decoded.
type AudioOutput struct {
	Frame    audio.Frame
	Duration float32
}

// EndCall asks the gateway to hang up.
type EndCall struct {
	CallID string
}

type TargetStaff struct {
	Extension string
	SIPNumber string
}

// RoutingNumber is the extension, then the SIP number, then "".
func (t TargetStaff) RoutingNumber() string {
	if t.Extension != "" {
		return t.Extension
	}
	return t.SIPNumber
}

// TransferCall hands the call over to staff, first target preferred.
type TransferCall struct {
	CallID        string
	CustomerPhone string
	Targets       []TargetStaff
}

// RoutingNumber of the first target, or "" when there is none.
func (t TransferCall) RoutingNumber() string {
	if len(t.Targets) == 0 {
		return ""
	}
	return t.Targets[0].RoutingNumber()
}

// OpaqueSignal is a signal shape the gateway does not interpret. Raw holds
// the undecoded protobuf fields.
type OpaqueSignal struct {
	Raw []byte
}

// Failure is a logical error reported by the backend (status=false or an
// error payload).
type Failure struct {
	ErrorCode    int32
	InternalCode string
	Message      string
}

func (AudioOutput) isEvent()  {}
func (EndCall) isEvent()      {}
func (TransferCall) isEvent() {}
func (OpaqueSignal) isEvent() {}
func (Failure) isEvent()      {}

func transferFromWire(tc *livecallpb.TransferCall) TransferCall {
	out := TransferCall{CallID: tc.CallID, CustomerPhone: tc.CustomerPhoneNumber}
	for _, ts := range tc.TargetStaff {
		if ts == nil {
			continue
		}
		out.Targets = append(out.Targets, TargetStaff{Extension: ts.Extension, SIPNumber: ts.SIPNumber})
	}
	return out
}
