package audio

import "time"

// ThresholdFor converts a target playback duration into a byte threshold for
// mono audio at rate with bytesPerSample bytes per sample.
func ThresholdFor(d time.Duration, rate, bytesPerSample int) int {
	if d <= 0 || rate <= 0 || bytesPerSample <= 0 {
		return 0
	}
	return int(d * time.Duration(rate) / time.Second * time.Duration(bytesPerSample))
}

// Batcher accumulates outbound PCM until at least threshold bytes are
// pending, then hands them out as one block in arrival order.
//
// A Batcher is owned by a single goroutine and is not safe for concurrent use.
type Batcher struct {
	threshold int
	pending   [][]byte
	size      int
}

// NewBatcher returns a Batcher that flushes once threshold bytes are
// buffered. A threshold <= 0 flushes on every non-empty append.
func NewBatcher(threshold int) *Batcher {
	return &Batcher{threshold: threshold}
}

func (b *Batcher) Threshold() int { return b.threshold }

// Len reports the number of buffered bytes.
func (b *Batcher) Len() int { return b.size }

// Append buffers p. Empty blocks are ignored.
func (b *Batcher) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.pending = append(b.pending, p)
	b.size += len(p)
}

// MaybeFlush returns all buffered bytes and clears the buffer when force is
// set or the threshold has been reached. An empty buffer never flushes.
func (b *Batcher) MaybeFlush(force bool) ([]byte, bool) {
	if b.size == 0 {
		return nil, false
	}
	if !force && b.size < b.threshold {
		return nil, false
	}

	out := make([]byte, 0, b.size)
	for _, p := range b.pending {
		out = append(out, p...)
	}
	b.reset()
	return out, true
}

// Push appends p and flushes if the append crossed the threshold.
func (b *Batcher) Push(p []byte) ([]byte, bool) {
	b.Append(p)
	return b.MaybeFlush(false)
}

// Discard drops everything buffered and returns how many bytes were lost.
func (b *Batcher) Discard() int {
	n := b.size
	b.reset()
	return n
}

func (b *Batcher) reset() {
	clear(b.pending)
	b.pending = b.pending[:0]
	b.size = 0
}
