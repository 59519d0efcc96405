package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yoockh/callbridge/internal/backend"
)

// ClientOutbound is one message for the client: AudioMessage,
// DisconnectNotice, TransferNotice, SignalNotice or ErrorNotice.
type ClientOutbound interface {
	isClientOutbound()
}

// AudioMessage is one batch of PCM16 mono at SampleRate.
type AudioMessage struct {
	Content    []byte
	SampleRate int
	Duration   float64
}

type DisconnectNotice struct {
	CallID string
}

type TransferNotice struct {
	CallID        string
	CustomerPhone string
	// RoutingNumber is the first target's extension or SIP number.
	RoutingNumber string
	Targets       []backend.TargetStaff
}

// SignalNotice forwards a signal the gateway does not interpret.
type SignalNotice struct {
	Raw []byte
}

type ErrorNotice struct {
	ErrorCode    int32
	InternalCode string
	Message      string
}

func (AudioMessage) isClientOutbound()     {}
func (DisconnectNotice) isClientOutbound() {}
func (TransferNotice) isClientOutbound()   {}
func (SignalNotice) isClientOutbound()     {}
func (ErrorNotice) isClientOutbound()      {}

// Encoder renders outbound messages in one client schema.
type Encoder interface {
	Encode(ClientOutbound) ([]byte, error)
}

type Schema string

const (
	SchemaEnvelope Schema = "envelope"
	SchemaTyped    Schema = "typed"
)

func NewEncoder(s Schema) (Encoder, error) {
	switch Schema(strings.ToLower(string(s))) {
	case "", SchemaEnvelope:
		return EnvelopeEncoder{}, nil
	case SchemaTyped:
		return TypedEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown client schema %q", s)
	}
}

type targetJSON struct {
	Extension string `json:"extension"`
	SIPNumber string `json:"sip_number"`
}

func targetsJSON(ts []backend.TargetStaff) []targetJSON {
	out := make([]targetJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, targetJSON{Extension: t.Extension, SIPNumber: t.SIPNumber})
	}
	return out
}

// EnvelopeEncoder writes the snake_case oneof envelope:
// {"audio_output":{...}}, {"signal":{...}} and {"error":{...}}.
type EnvelopeEncoder struct{}

func (EnvelopeEncoder) Encode(m ClientOutbound) ([]byte, error) {
	switch m := m.(type) {
	case AudioMessage:
		return json.Marshal(map[string]any{
			"audio_output": map[string]any{
				"audio_content": base64.StdEncoding.EncodeToString(m.Content),
				"sample_rate":   m.SampleRate,
				"sample_width":  16,
				"num_channels":  1,
				"duration":      m.Duration,
			},
		})
	case DisconnectNotice:
		return json.Marshal(map[string]any{
			"signal": map[string]any{"end_call": map[string]any{"call_id": m.CallID}},
		})
	case TransferNotice:
		return json.Marshal(map[string]any{
			"signal": map[string]any{"transfer_call": map[string]any{
				"call_id":               m.CallID,
				"customer_phone_number": m.CustomerPhone,
				"target_number":         m.RoutingNumber,
				"target_staff":          targetsJSON(m.Targets),
			}},
		})
	case SignalNotice:
		return json.Marshal(map[string]any{
			"signal": map[string]any{"raw": base64.StdEncoding.EncodeToString(m.Raw)},
		})
	case ErrorNotice:
		return json.Marshal(map[string]any{
			"error": map[string]any{
				"error_code":    m.ErrorCode,
				"internal_code": m.InternalCode,
				"message":       m.Message,
			},
		})
	default:
		return nil, fmt.Errorf("envelope encoder: unsupported message %T", m)
	}
}

// TypedEncoder writes {"type": ..., "data": {...}} messages for clients
// that play buffered audio.
type TypedEncoder struct{}

type typedMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data"`
	Final *int   `json:"final,omitempty"`
}

func (TypedEncoder) Encode(m ClientOutbound) ([]byte, error) {
	switch m := m.(type) {
	case AudioMessage:
		final := 0
		return json.Marshal(typedMessage{
			Type: "playAudio",
			Data: map[string]any{
				"audioContentType": "raw",
				"sampleRate":       m.SampleRate,
				"audioContent":     base64.StdEncoding.EncodeToString(m.Content),
				"audioDuration":    m.Duration,
			},
			Final: &final,
		})
	case DisconnectNotice:
		return json.Marshal(typedMessage{Type: "disconnect", Data: map[string]any{"callId": m.CallID}})
	case TransferNotice:
		return json.Marshal(typedMessage{Type: "transfer", Data: map[string]any{
			"callId":        m.CallID,
			"customerPhone": m.CustomerPhone,
			"targetNumber":  m.RoutingNumber,
		}})
	case SignalNotice:
		return json.Marshal(typedMessage{Type: "signal", Data: map[string]any{
			"raw": base64.StdEncoding.EncodeToString(m.Raw),
		}})
	case ErrorNotice:
		return json.Marshal(typedMessage{Type: "error", Data: map[string]any{
			"errorCode":    m.ErrorCode,
			"internalCode": m.InternalCode,
			"message":      m.Message,
		}})
	default:
		return nil, fmt.Errorf("typed encoder: unsupported message %T", m)
	}
}
