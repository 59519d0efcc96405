// Package livecallpb holds the message types, wire codec and gRPC stubs for
// the live_call.LiveCall service described in proto/voice.proto.
//
// The messages are plain Go structs encoded with protowire, so the package
// needs no generated code while staying wire compatible with any protobuf
// implementation of the same schema.
package livecallpb

// ClientRequest is a gateway -> backend stream message. Exactly one of
// InitialInfo, PlayAudio or Disconnect is set.
type ClientRequest struct {
	Status bool

	InitialInfo *InitialInfo
	PlayAudio   *PlayAudio
	Disconnect  *Disconnect
}

type InitialInfo struct {
	WorkspaceID         string
	CallID              string
	CustomerPhoneNumber string
	TypeCall            string
	Hotline             string
	URLAudioFile        string
	SpeakerID           string
	Environment         string
}

// PlayAudio carries one block of PCM. AudioContent is base64 text.
type PlayAudio struct {
	SampleRate   int32
	SampleWidth  int32
	NumChannels  int32
	Duration     float32
	AudioContent string
}

type Disconnect struct{}

// ServerResponse is a backend -> gateway stream message. At most one of
// AudioOutput, Signal or Error is set.
type ServerResponse struct {
	Status bool

	AudioOutput *ServerAudioChunk
	Signal      *Signal
	Error       *Error
}

type ServerAudioChunk struct {
	SampleRate   int32
	SampleWidth  int32
	NumChannels  int32
	Duration     float32
	AudioContent string
}

// Signal is a backend control event. When neither EndCall nor TransferCall is
// set, Unknown holds the raw encoded fields the gateway did not recognise.
type Signal struct {
	EndCall      *EndCall
	TransferCall *TransferCall

	Unknown []byte
}

type EndCall struct {
	CallID string
}

type TransferCall struct {
	CallID              string
	CustomerPhoneNumber string
	TargetStaff         []*TargetStaff
}

type TargetStaff struct {
	Extension string
	SIPNumber string
}

type Error struct {
	ErrorCode    int32
	InternalCode string
	Message      string
}

// NewInitialInfo wraps info in a ClientRequest with status set.
func NewInitialInfo(info *InitialInfo) *ClientRequest {
	return &ClientRequest{Status: true, InitialInfo: info}
}

// NewPlayAudio wraps audio in a ClientRequest with status set.
func NewPlayAudio(audio *PlayAudio) *ClientRequest {
	return &ClientRequest{Status: true, PlayAudio: audio}
}

// NewDisconnect returns a disconnect ClientRequest.
func NewDisconnect() *ClientRequest {
	return &ClientRequest{Status: true, Disconnect: &Disconnect{}}
}
