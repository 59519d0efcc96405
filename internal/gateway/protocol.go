package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// ClientInbound is one decoded client message: PlayAudio, Disconnect,
// InitialInfo or RawAudio.
type ClientInbound interface {
	isClientInbound()
}

// PlayAudio is {"play_audio": {...}}. Zero numeric fields mean "use the
// configured ingress format".
type PlayAudio struct {
	SampleRate   int     `json:"sample_rate"`
	SampleWidth  int     `json:"sample_width"`
	NumChannels  int     `json:"num_channels"`
	Duration     float64 `json:"duration"`
	AudioContent string  `json:"audio_content"`
}

type Disconnect struct{}

// InitialInfo from the client is accepted and ignored; the gateway has
// already initialized the backend from the connection parameters.
type InitialInfo struct {
	Raw json.RawMessage
}

// RawAudio is a binary websocket frame of bare PCM.
type RawAudio struct {
	Content []byte
}

func (PlayAudio) isClientInbound()   {}
func (Disconnect) isClientInbound()  {}
func (InitialInfo) isClientInbound() {}
func (RawAudio) isClientInbound()    {}

// DecodeError describes a client message that could not be understood.
// Kind is a short label used for logs and metrics.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode client message: " + e.Kind
	}
	return fmt.Sprintf("decode client message: %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope keys. A key counts as present even when its body is null.
const (
	keyPlayAudio   = "play_audio"
	keyDisconnect  = "disconnect"
	keyInitialInfo = "initial_info"
)

// DecodeClientMessage decodes one websocket message. Text frames must hold
// exactly one of play_audio, disconnect or initial_info; binary frames are
// returned as RawAudio.
func DecodeClientMessage(messageType int, data []byte) (ClientInbound, error) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return nil, &DecodeError{Kind: "empty_binary"}
		}
		return RawAudio{Content: data}, nil
	case websocket.TextMessage:
	default:
		return nil, &DecodeError{Kind: "frame_type", Err: fmt.Errorf("websocket message type %d", messageType)}
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return nil, &DecodeError{Kind: "json", Err: err}
	}

	var out ClientInbound
	n := 0
	if raw, ok := env[keyPlayAudio]; ok {
		var pa PlayAudio
		if err := json.Unmarshal(raw, &pa); err != nil {
			return nil, &DecodeError{Kind: "json", Err: err}
		}
		out = pa
		n++
	}
	if _, ok := env[keyDisconnect]; ok {
		out = Disconnect{}
		n++
	}
	if raw, ok := env[keyInitialInfo]; ok {
		out = InitialInfo{Raw: raw}
		n++
	}

	switch n {
	case 0:
		return nil, &DecodeError{Kind: "unknown_message"}
	case 1:
	default:
		return nil, &DecodeError{Kind: "ambiguous_message"}
	}

	if pa, ok := out.(PlayAudio); ok && pa.AudioContent == "" {
		return nil, &DecodeError{Kind: "missing_audio"}
	}
	return out, nil
}
