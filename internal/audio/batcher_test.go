package audio_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yoockh/callbridge/internal/audio"
)

func TestThresholdFor(t *testing.T) {
	tests := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{200 * time.Millisecond, 8000, 3200},
		{384 * time.Millisecond, 8000, 6144},
		{100 * time.Millisecond, 24000, 4800},
		{0, 8000, 0},
	}
	for _, tt := range tests {
		if got := audio.ThresholdFor(tt.d, tt.rate, 2); got != tt.want {
			t.Errorf("ThresholdFor(%v, %d) = %d, want %d", tt.d, tt.rate, got, tt.want)
		}
	}
}

func TestBatcher_FlushesAtThreshold(t *testing.T) {
	b := audio.NewBatcher(6)

	if _, ok := b.Push([]byte{1, 2}); ok {
		t.Fatal("flushed below threshold")
	}
	if _, ok := b.Push([]byte{3, 4}); ok {
		t.Fatal("flushed below threshold")
	}
	out, ok := b.Push([]byte{5, 6, 7, 8})
	if !ok {
		t.Fatal("expected flush once threshold reached")
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("out = %v, want arrival order", out)
	}
	if b.Len() != 0 {
		t.Errorf("Len after flush = %d", b.Len())
	}
}

func TestBatcher_ForceFlush(t *testing.T) {
	b := audio.NewBatcher(1000)
	if out, ok := b.MaybeFlush(true); ok || out != nil {
		t.Fatalf("forced flush on empty batcher = (%v, %v), want (nil, false)", out, ok)
	}

	b.Append([]byte{9, 9})
	out, ok := b.MaybeFlush(true)
	if !ok || !bytes.Equal(out, []byte{9, 9}) {
		t.Errorf("forced flush = (%v, %v)", out, ok)
	}
	if _, ok := b.MaybeFlush(true); ok {
		t.Error("second forced flush emitted data")
	}
}

func TestBatcher_EmptyAppendIgnored(t *testing.T) {
	b := audio.NewBatcher(0)
	if _, ok := b.Push(nil); ok {
		t.Error("empty push flushed")
	}
	if out, ok := b.Push([]byte{1}); !ok || len(out) != 1 {
		t.Errorf("zero threshold push = (%v, %v), want immediate flush", out, ok)
	}
}

func TestBatcher_Discard(t *testing.T) {
	b := audio.NewBatcher(100)
	b.Append([]byte{1, 2, 3})
	if n := b.Discard(); n != 3 {
		t.Errorf("Discard = %d, want 3", n)
	}
	if _, ok := b.MaybeFlush(true); ok {
		t.Error("flush after discard emitted data")
	}
}

func TestWAVWriter_PatchesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w, err := audio.NewWAVWriter(f, audio.Telephony)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	pcm := audio.EncodePCM16([]int16{1, 2, 3, 4})
	if _, err := w.Write(pcm[:4]); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(pcm[4:]); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.Write(pcm); err == nil {
		t.Error("write after close succeeded")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := audio.EncodeWAV(pcm, audio.Telephony)
	if !bytes.Equal(got, want) {
		t.Errorf("file = %x\nwant  %x", got, want)
	}
}
