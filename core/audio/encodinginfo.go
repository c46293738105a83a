package audio

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultCaptureSampleRate is the rate microphone frames are captured at.
	DefaultCaptureSampleRate = 16000
	// DefaultPlaybackSampleRate is the rate the remote service synthesizes at.
	DefaultPlaybackSampleRate = 24000

	DefaultChannels = 1
)

// EncodingInfo describes a stream of signed 16-bit little-endian PCM.
type EncodingInfo struct {
	SampleRate int
	Channels   int
}

func DefaultCaptureEncoding() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultCaptureSampleRate, Channels: DefaultChannels}
}

func DefaultPlaybackEncoding() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultPlaybackSampleRate, Channels: DefaultChannels}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Channels == 0
}

// BytesPerFrame returns the byte size of one frame across all channels.
func (e EncodingInfo) BytesPerFrame() int {
	return 2 * e.Channels
}

// MIMEType renders the rate descriptor used on the wire, e.g.
// "audio/pcm;rate=16000".
func (e EncodingInfo) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", e.SampleRate)
}

// ParseMIMEType parses a wire rate descriptor like "audio/pcm;rate=24000".
// Channel count is not carried on the wire and defaults to mono.
func ParseMIMEType(mimeType string) (EncodingInfo, error) {
	base, params, _ := strings.Cut(mimeType, ";")
	if strings.TrimSpace(base) != "audio/pcm" {
		return EncodingInfo{}, fmt.Errorf("unsupported audio mime type: %q", mimeType)
	}

	info := EncodingInfo{SampleRate: DefaultPlaybackSampleRate, Channels: DefaultChannels}
	for param := range strings.SplitSeq(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}

		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return EncodingInfo{}, fmt.Errorf("invalid sample rate in mime type %q", mimeType)
		}
		info.SampleRate = rate
	}

	return info, nil
}
