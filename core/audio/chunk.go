package audio

import "time"

// Chunk is one run of encoded PCM with its position in the stream. Chunks
// are immutable once produced; sequence numbers increase monotonically per
// direction, and a gap means the network dropped data, not that playback
// should stall.
type Chunk struct {
	// Data holds signed 16-bit little-endian PCM.
	Data     []byte
	Encoding EncodingInfo
	Seq      uint64
}

func NewChunk(samples []float32, encoding EncodingInfo, seq uint64) Chunk {
	return Chunk{Data: Encode(samples), Encoding: encoding, Seq: seq}
}

// Samples decodes the payload back into float32 samples.
func (c Chunk) Samples() ([]float32, error) {
	return Decode(c.Data, c.Encoding.Channels)
}

// Duration returns the playback time the chunk covers.
func (c Chunk) Duration() time.Duration {
	if c.Encoding.IsZero() {
		return 0
	}

	frames := len(c.Data) / c.Encoding.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(c.Encoding.SampleRate)
}

func (c Chunk) IsZero() bool {
	return len(c.Data) == 0 && c.Encoding.IsZero()
}
