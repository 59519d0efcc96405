package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/backend"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		mt       int
		data     string
		wantKind string
		check    func(t *testing.T, m ClientInbound)
	}{
		{
			name: "play audio",
			mt:   websocket.TextMessage,
			data: `{"play_audio":{"sample_rate":16000,"audio_content":"AAA="}}`,
			check: func(t *testing.T, m ClientInbound) {
				pa, ok := m.(PlayAudio)
				if !ok || pa.SampleRate != 16000 || pa.AudioContent != "AAA=" {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name: "disconnect",
			mt:   websocket.TextMessage,
			data: `{"disconnect":{}}`,
			check: func(t *testing.T, m ClientInbound) {
				if _, ok := m.(Disconnect); !ok {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name: "initial info",
			mt:   websocket.TextMessage,
			data: `{"initial_info":{"call_id":"x"}}`,
			check: func(t *testing.T, m ClientInbound) {
				if _, ok := m.(InitialInfo); !ok {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name: "disconnect with null body",
			mt:   websocket.TextMessage,
			data: `{"disconnect":null}`,
			check: func(t *testing.T, m ClientInbound) {
				if _, ok := m.(Disconnect); !ok {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name: "initial info with null body",
			mt:   websocket.TextMessage,
			data: `{"initial_info":null}`,
			check: func(t *testing.T, m ClientInbound) {
				if _, ok := m.(InitialInfo); !ok {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name: "binary",
			mt:   websocket.BinaryMessage,
			data: "\x01\x00",
			check: func(t *testing.T, m ClientInbound) {
				if r, ok := m.(RawAudio); !ok || len(r.Content) != 2 {
					t.Errorf("got %#v", m)
				}
			},
		},
		{name: "invalid json", mt: websocket.TextMessage, data: `{`, wantKind: "json"},
		{name: "unknown", mt: websocket.TextMessage, data: `{"ping":{}}`, wantKind: "unknown_message"},
		{name: "two kinds", mt: websocket.TextMessage, data: `{"disconnect":{},"initial_info":{}}`, wantKind: "ambiguous_message"},
		{name: "no audio", mt: websocket.TextMessage, data: `{"play_audio":{"sample_rate":8000}}`, wantKind: "missing_audio"},
		{name: "null audio body", mt: websocket.TextMessage, data: `{"play_audio":null}`, wantKind: "missing_audio"},
		{name: "audio body not an object", mt: websocket.TextMessage, data: `{"play_audio":5}`, wantKind: "json"},
		{name: "null and disconnect", mt: websocket.TextMessage, data: `{"disconnect":null,"initial_info":null}`, wantKind: "ambiguous_message"},
		{name: "empty binary", mt: websocket.BinaryMessage, data: "", wantKind: "empty_binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeClientMessage(tt.mt, []byte(tt.data))
			if tt.wantKind != "" {
				var de *DecodeError
				if !errors.As(err, &de) || de.Kind != tt.wantKind {
					t.Fatalf("err = %v, want DecodeError %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeClientMessage: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestTranslator_ToFrameFillsDefaults(t *testing.T) {
	tr := Translator{Ingress: audio.Telephony, OutputRate: 8000}

	f, err := tr.ToFrame(PlayAudio{AudioContent: base64.StdEncoding.EncodeToString(make([]byte, 320))})
	if err != nil {
		t.Fatalf("ToFrame: %v", err)
	}
	if f.Format != audio.Telephony {
		t.Errorf("format = %v, want ingress default", f.Format)
	}

	f, err = tr.ToFrame(PlayAudio{SampleRate: 16000, NumChannels: 2, AudioContent: base64.StdEncoding.EncodeToString(make([]byte, 8))})
	if err != nil {
		t.Fatalf("ToFrame: %v", err)
	}
	want := audio.Format{SampleRate: 16000, SampleWidthBits: 16, NumChannels: 2}
	if f.Format != want {
		t.Errorf("format = %v, want %v", f.Format, want)
	}

	// 6 bytes is not a whole number of 16-bit stereo frames.
	_, err = tr.ToFrame(PlayAudio{NumChannels: 2, AudioContent: base64.StdEncoding.EncodeToString(make([]byte, 6))})
	if !errors.Is(err, audio.ErrUnalignedFrame) {
		t.Errorf("err = %v, want ErrUnalignedFrame", err)
	}
}

func TestTranslator_RawToFrame(t *testing.T) {
	off := Translator{}
	if _, err := off.RawToFrame(RawAudio{Content: []byte{0, 0}}); !errors.Is(err, ErrBinaryAudioDisabled) {
		t.Errorf("err = %v, want ErrBinaryAudioDisabled", err)
	}
	on := Translator{LegacyBinary: true}
	f, err := on.RawToFrame(RawAudio{Content: []byte{0, 0}})
	if err != nil || f.Format != audio.Telephony {
		t.Errorf("frame = %+v, err = %v", f, err)
	}
}

func TestTranslator_AudioMessageDuration(t *testing.T) {
	tr := Translator{OutputRate: 8000}
	m := tr.AudioMessage(make([]byte, 6144))
	if m.Duration != 0.384 || m.SampleRate != 8000 {
		t.Errorf("message = %+v, want 0.384s at 8000 Hz", m)
	}
}

func TestTranslator_Notice(t *testing.T) {
	tr := Translator{}
	n, err := tr.Notice(backend.TransferCall{CallID: "abc", Targets: []backend.TargetStaff{{Extension: "101", SIPNumber: "sip:1"}}})
	if err != nil {
		t.Fatal(err)
	}
	if tn := n.(TransferNotice); tn.RoutingNumber != "101" {
		t.Errorf("routing = %q, want extension", tn.RoutingNumber)
	}
	n, _ = tr.Notice(backend.TransferCall{CallID: "abc"})
	if tn := n.(TransferNotice); tn.RoutingNumber != "" {
		t.Errorf("routing = %q, want empty", tn.RoutingNumber)
	}
	if _, err := tr.Notice(backend.AudioOutput{}); err == nil {
		t.Error("audio output accepted as notice")
	}
}

func TestEncoders(t *testing.T) {
	audioMsg := AudioMessage{Content: []byte{1, 2, 3, 4}, SampleRate: 8000, Duration: 0.000125}

	t.Run("envelope audio", func(t *testing.T) {
		b, err := EnvelopeEncoder{}.Encode(audioMsg)
		if err != nil {
			t.Fatal(err)
		}
		var got struct {
			AudioOutput struct {
				AudioContent string `json:"audio_content"`
				SampleRate   int    `json:"sample_rate"`
			} `json:"audio_output"`
		}
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal(err)
		}
		if got.AudioOutput.AudioContent != "AQIDBA==" || got.AudioOutput.SampleRate != 8000 {
			t.Errorf("decoded = %+v", got)
		}
	})

	t.Run("typed audio", func(t *testing.T) {
		b, err := TypedEncoder{}.Encode(audioMsg)
		if err != nil {
			t.Fatal(err)
		}
		var got struct {
			Type  string `json:"type"`
			Final *int   `json:"final"`
			Data  struct {
				AudioContentType string  `json:"audioContentType"`
				SampleRate       int     `json:"sampleRate"`
				AudioContent     string  `json:"audioContent"`
				AudioDuration    float64 `json:"audioDuration"`
			} `json:"data"`
		}
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal(err)
		}
		if got.Type != "playAudio" || got.Final == nil || *got.Final != 0 {
			t.Errorf("envelope = %s", b)
		}
		if got.Data.AudioContentType != "raw" || got.Data.SampleRate != 8000 || got.Data.AudioDuration != 0.000125 {
			t.Errorf("data = %+v", got.Data)
		}
	})

	t.Run("envelope error", func(t *testing.T) {
		b, _ := EnvelopeEncoder{}.Encode(ErrorNotice{ErrorCode: 500, InternalCode: "X", Message: "boom"})
		want := `{"error":{"error_code":500,"internal_code":"X","message":"boom"}}`
		if string(b) != want {
			t.Errorf("got %s, want %s", b, want)
		}
	})

	t.Run("typed transfer", func(t *testing.T) {
		b, _ := TypedEncoder{}.Encode(TransferNotice{CallID: "abc", CustomerPhone: "0901", RoutingNumber: "101"})
		want := `{"type":"transfer","data":{"callId":"abc","customerPhone":"0901","targetNumber":"101"}}`
		if string(b) != want {
			t.Errorf("got %s, want %s", b, want)
		}
	})

	t.Run("schema selection", func(t *testing.T) {
		if e, _ := NewEncoder("typed"); e != (TypedEncoder{}) {
			t.Errorf("typed -> %T", e)
		}
		if e, _ := NewEncoder(""); e != (EnvelopeEncoder{}) {
			t.Errorf("default -> %T", e)
		}
		if _, err := NewEncoder("xml"); err == nil {
			t.Error("unknown schema accepted")
		}
	})
}
