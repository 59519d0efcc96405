package stt

import "context"

// Transcript is the best alternative returned for one recording.
type Transcript struct {
	Text       string
	Confidence float64
}

// Provider transcribes mono 16-bit PCM.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (Transcript, error)
	Close() error
}
