package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/backend"
)

var ErrBinaryAudioDisabled = errors.New("binary audio frames are disabled")

// Translator maps between client messages and backend messages. It holds
// configuration only.
type Translator struct {
	Ingress      audio.Format
	OutputRate   int
	LegacyBinary bool
}

// ToFrame converts a client play_audio message into a validated frame,
// filling zero format fields from the ingress format.
func (t Translator) ToFrame(m PlayAudio) (audio.Frame, error) {
	f := t.Ingress
	if m.SampleRate > 0 {
		f.SampleRate = m.SampleRate
	}
	if m.SampleWidth > 0 {
		f.SampleWidthBits = m.SampleWidth
	}
	if m.NumChannels > 0 {
		f.NumChannels = m.NumChannels
	}

	content, err := base64.StdEncoding.DecodeString(m.AudioContent)
	if err != nil {
		return audio.Frame{}, &DecodeError{Kind: "base64", Err: err}
	}
	fr := audio.Frame{Format: f, Content: content}
	if err := fr.Validate(); err != nil {
		return audio.Frame{}, &DecodeError{Kind: "frame", Err: err}
	}
	return fr, nil
}

// RawToFrame wraps a legacy binary frame in the telephony format.
func (t Translator) RawToFrame(m RawAudio) (audio.Frame, error) {
	if !t.LegacyBinary {
		return audio.Frame{}, &DecodeError{Kind: "binary_disabled", Err: ErrBinaryAudioDisabled}
	}
	fr := audio.Frame{Format: audio.Telephony, Content: m.Content}
	if err := fr.Validate(); err != nil {
		return audio.Frame{}, &DecodeError{Kind: "frame", Err: err}
	}
	return fr, nil
}

// ResampleOutput converts backend audio to mono PCM16 at the client rate.
func (t Translator) ResampleOutput(f audio.Frame) ([]byte, error) {
	out, err := audio.ResamplePCM16(f.Content, f.Format, t.OutputRate)
	if err != nil {
		return nil, fmt.Errorf("resample %s to %d Hz: %w", f.Format, t.OutputRate, err)
	}
	return out, nil
}

// AudioMessage wraps one flushed batch for the client.
func (t Translator) AudioMessage(pcm []byte) AudioMessage {
	return AudioMessage{
		Content:    pcm,
		SampleRate: t.OutputRate,
		Duration:   float64(len(pcm)) / 2 / float64(t.OutputRate),
	}
}

// Notice maps a non-audio backend event to its client message.
func (t Translator) Notice(ev backend.Event) (ClientOutbound, error) {
	switch ev := ev.(type) {
	case backend.EndCall:
		return DisconnectNotice{CallID: ev.CallID}, nil
	case backend.TransferCall:
		return TransferNotice{
			CallID:        ev.CallID,
			CustomerPhone: ev.CustomerPhone,
			RoutingNumber: ev.RoutingNumber(),
			Targets:       ev.Targets,
		}, nil
	case backend.OpaqueSignal:
		return SignalNotice{Raw: ev.Raw}, nil
	case backend.Failure:
		return ErrorNotice{
			ErrorCode:    ev.ErrorCode,
			InternalCode: ev.InternalCode,
			Message:      ev.Message,
		}, nil
	case backend.AudioOutput:
		return nil, errors.New("audio output goes through the batcher")
	default:
		return nil, fmt.Errorf("unknown backend event %T", ev)
	}
}
