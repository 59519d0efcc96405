package mockbackend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yoockh/callbridge/internal/audio"
)

// RecordingSummary describes a closed recording.
type RecordingSummary struct {
	CallID   string
	Path     string
	Format   audio.Format
	Bytes    int
	Duration time.Duration
}

type recording struct {
	callID string
	path   string
	file   *os.File
	wav    *audio.WAVWriter
}

// openRecording creates <dir>/<callID>.wav. The header carries def until
// the first audio block sets the real format.
func openRecording(dir, callID string, def audio.Format) (*recording, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(dir, safeName(callID)+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	w, err := audio.NewWAVWriter(f, def)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &recording{callID: callID, path: path, file: f, wav: w}, nil
}

// write appends a frame. Later frames in another format are converted to
// the recording's format.
func (r *recording) write(fr audio.Frame) error {
	cur := r.wav.Format()
	if fr.Format != cur {
		if r.wav.DataSize() == 0 {
			if err := r.wav.SetFormat(fr.Format); err != nil {
				return err
			}
		} else {
			pcm, err := audio.ResamplePCM16(fr.Content, fr.Format, cur.SampleRate)
			if err != nil {
				return err
			}
			fr = audio.Frame{Format: cur, Content: pcm}
		}
	}
	_, err := r.wav.Write(fr.Content)
	return err
}

func (r *recording) close() (RecordingSummary, error) {
	werr := r.wav.Close()
	ferr := r.file.Close()
	f := r.wav.Format()
	n := r.wav.DataSize()
	sum := RecordingSummary{
		CallID:   r.callID,
		Path:     r.path,
		Format:   f,
		Bytes:    n,
		Duration: f.Duration(n),
	}
	if werr != nil {
		return sum, werr
	}
	return sum, ferr
}

// safeName keeps a call id usable as a file name.
func safeName(id string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	s = strings.Trim(s, ".")
	if s == "" {
		return "call"
	}
	return s
}
