package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const wavHeaderSize = 44

var ErrWriterClosed = errors.New("audio: wav writer closed")

// WAVWriter streams PCM into a RIFF/WAV container. The header is written
// with zero sizes up front and patched when the writer is closed, so the
// destination must support seeking.
type WAVWriter struct {
	mu     sync.Mutex
	dst    io.WriteSeeker
	format Format
	data   uint32
	closed bool
}

// NewWAVWriter writes a placeholder header to dst and returns a writer for
// PCM in format f.
func NewWAVWriter(dst io.WriteSeeker, f Format) (*WAVWriter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w := &WAVWriter{dst: dst, format: f}
	if _, err := dst.Write(wavHeader(f, 0)); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

func (w *WAVWriter) Format() Format {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format
}

// SetFormat changes the format recorded in the header. It is only allowed
// before any PCM has been written.
func (w *WAVWriter) SetFormat(f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.data > 0 {
		return fmt.Errorf("%w: format fixed after %d bytes", ErrUnsupportedPCM, w.data)
	}
	w.format = f
	return nil
}

// Write appends raw PCM to the data chunk.
func (w *WAVWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWriterClosed
	}
	n, err := w.dst.Write(p)
	w.data += uint32(n)
	return n, err
}

// DataSize reports the number of PCM bytes written so far.
func (w *WAVWriter) DataSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.data)
}

// Close rewrites the header with the final sizes. It does not close dst.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek wav header: %w", err)
	}
	if _, err := w.dst.Write(wavHeader(w.format, w.data)); err != nil {
		return fmt.Errorf("patch wav header: %w", err)
	}
	_, err := w.dst.Seek(0, io.SeekEnd)
	return err
}

// EncodeWAV wraps a complete PCM buffer in a WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, 0, wavHeaderSize+len(pcm))
	buf = append(buf, wavHeader(f, uint32(len(pcm)))...)
	return append(buf, pcm...)
}

func wavHeader(f Format, dataSize uint32) []byte {
	h := make([]byte, wavHeaderSize)
	blockAlign := f.BytesPerFrame()

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.NumChannels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.SampleWidthBits))

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}
