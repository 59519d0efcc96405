package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

type GoogleSpeech struct {
	c *speech.Client
}

func NewGoogleSpeech(ctx context.Context, opts ...option.ClientOption) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GoogleSpeech{c: c}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// Transcribe runs a synchronous recognition over a whole recording.
// language example: "en-US", "vi-VN"
func (g *GoogleSpeech) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (Transcript, error) {
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			AudioChannelCount:          1,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
			Model:                      "phone_call",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return Transcript{}, err
	}
	return bestTranscript(resp.GetResults()), nil
}

// bestTranscript joins the top alternative of every result; confidence is
// the lowest of those alternatives.
func bestTranscript(results []*speechpb.SpeechRecognitionResult) Transcript {
	var t Transcript
	first := true
	for _, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 || alts[0].GetTranscript() == "" {
			continue
		}
		if t.Text != "" {
			t.Text += " "
		}
		t.Text += alts[0].GetTranscript()
		c := float64(alts[0].GetConfidence())
		if first || c < t.Confidence {
			t.Confidence = c
			first = false
		}
	}
	return t
}
