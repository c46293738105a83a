package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedAudioData marks PCM payloads whose length does not divide into
// whole frames. Callers are expected to drop the offending chunk and keep
// the stream going.
var ErrMalformedAudioData = errors.New("malformed audio data")

// Encode quantizes float32 samples in [-1.0, 1.0] to signed 16-bit
// little-endian PCM. Out-of-range samples are clamped rather than wrapped.
func Encode(samples []float32) []byte {
	encoded := make([]byte, len(samples)*2)
	for i, sample := range samples {
		quantized := math.Round(float64(sample) * 32767)
		if quantized > math.MaxInt16 {
			quantized = math.MaxInt16
		} else if quantized < math.MinInt16 {
			quantized = math.MinInt16
		}
		binary.LittleEndian.PutUint16(encoded[i*2:], uint16(int16(quantized)))
	}
	return encoded
}

// Decode reconstructs float32 samples in [-1.0, 1.0) from signed 16-bit
// little-endian PCM. Channels from a single frame stay interleaved.
func Decode(data []byte, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudioData, channels)
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel frames",
			ErrMalformedAudioData, len(data), channels)
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return samples, nil
}
