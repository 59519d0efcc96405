package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Resample converts samples from fromRate to toRate by linear interpolation.
//
// Each call is independent: the output holds floor(n*toRate/fromRate)
// samples and any fractional source position left over at the end of the
// block is dropped rather than carried into the next call. Equal rates take
// the same interpolation path and reproduce the input.
func Resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrUnsupportedRate, fromRate, toRate)
	}
	n := len(samples)
	if n == 0 {
		return []int16{}, nil
	}

	outLen := int(int64(n) * int64(toRate) / int64(fromRate))
	out := make([]int16, outLen)
	for i := range outLen {
		// i*from/to computed from the integer product keeps whole source
		// positions exact.
		src := float64(int64(i)*int64(fromRate)) / float64(toRate)
		lo := int(math.Floor(src))
		if lo > n-1 {
			lo = n - 1
		}
		hi := min(lo+1, n-1)
		frac := src - float64(lo)

		v := math.Round(float64(samples[lo])*(1-frac) + float64(samples[hi])*frac)
		out[i] = clamp16(v)
	}
	return out, nil
}

func clamp16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// ResamplePCM16 resamples little-endian 16-bit PCM content to toRate and
// returns mono PCM16. Stereo input is averaged down to mono first.
func ResamplePCM16(content []byte, from Format, toRate int) ([]byte, error) {
	fr := Frame{Format: from, Content: content}
	if err := fr.Validate(); err != nil {
		return nil, err
	}
	if from.SampleWidthBits != 16 {
		return nil, fmt.Errorf("%w: resampler needs 16-bit samples, got %d", ErrUnsupportedPCM, from.SampleWidthBits)
	}

	pcm := content
	switch from.NumChannels {
	case 1:
	case 2:
		pcm = StereoToMono(content)
	default:
		return nil, fmt.Errorf("%w: cannot down-mix %d channels", ErrUnsupportedPCM, from.NumChannels)
	}

	out, err := Resample(DecodePCM16(pcm), from.SampleRate, toRate)
	if err != nil {
		return nil, err
	}
	return EncodePCM16(out), nil
}

// DecodePCM16 reads little-endian int16 samples. A trailing odd byte is ignored.
func DecodePCM16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// EncodePCM16 writes samples as little-endian int16.
func EncodePCM16(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// StereoToMono averages L+R per stereo frame (4 bytes) into one int16 sample.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		avg := (l + r) / 2
		if avg > math.MaxInt16 {
			avg = math.MaxInt16
		} else if avg < math.MinInt16 {
			avg = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}
