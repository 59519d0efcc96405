// Package audio holds the PCM plumbing of the gateway: frame formats, the
// stateless linear resampler, the outbound batcher and a WAV recorder.
package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnalignedFrame  = errors.New("audio: content is not a whole number of sample frames")
	ErrUnsupportedRate = errors.New("audio: sample rate must be > 0")
	ErrUnsupportedPCM  = errors.New("audio: unsupported pcm layout")
)

// Format describes linear PCM.
type Format struct {
	SampleRate      int
	SampleWidthBits int
	NumChannels     int
}

// Telephony is the legacy binary framing default: 8 kHz, 16-bit, mono.
var Telephony = Format{SampleRate: 8000, SampleWidthBits: 16, NumChannels: 1}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.SampleWidthBits / 8 * f.NumChannels
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return ErrUnsupportedRate
	}
	switch f.SampleWidthBits {
	case 8, 16, 32:
	default:
		return fmt.Errorf("%w: sample width %d bits", ErrUnsupportedPCM, f.SampleWidthBits)
	}
	if f.NumChannels < 1 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedPCM, f.NumChannels)
	}
	return nil
}

// Duration returns the playback time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.BytesPerFrame() <= 0 {
		return 0
	}
	return time.Duration(n/f.BytesPerFrame()) * time.Second / time.Duration(f.SampleRate)
}

// Seconds is Duration expressed the way the wire schemas carry it.
func (f Format) Seconds(n int) float64 {
	if f.SampleRate <= 0 || f.BytesPerFrame() <= 0 {
		return 0
	}
	return float64(n) / float64(f.BytesPerFrame()) / float64(f.SampleRate)
}

func (f Format) String() string {
	ch := "mono"
	if f.NumChannels == 2 {
		ch = "stereo"
	} else if f.NumChannels > 2 {
		ch = fmt.Sprintf("%dch", f.NumChannels)
	}
	return fmt.Sprintf("%dHz/%dbit/%s", f.SampleRate, f.SampleWidthBits, ch)
}

// Frame is a block of PCM in a known format.
type Frame struct {
	Format  Format
	Content []byte
}

// Validate rejects frames whose content does not split into whole sample
// frames. Empty content is valid.
func (fr Frame) Validate() error {
	if err := fr.Format.Validate(); err != nil {
		return err
	}
	if len(fr.Content)%fr.Format.BytesPerFrame() != 0 {
		return fmt.Errorf("%w: %d bytes for %s", ErrUnalignedFrame, len(fr.Content), fr.Format)
	}
	return nil
}

func (fr Frame) Seconds() float64 {
	return fr.Format.Seconds(len(fr.Content))
}
