//go:build cgo

package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
	"github.com/velalabs/vela-core/core/audio"
)

// Client exposes the default capture and playback devices through one
// shared miniaudio context.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	captureDevice
	playbackDevice
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize miniaudio context: %v",
			audio.ErrDeviceUnavailable, err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.captureDevice.Init(audioCtx, audio.DefaultCaptureEncoding()); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.playbackDevice.Init(audioCtx, audio.DefaultPlaybackEncoding()); err != nil {
		client.Close()
		return nil, err
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onFrame func(samples []float32)) error {
	return c.captureDevice.Start(onFrame)
}

func (c *Client) StopCapture() error {
	return c.captureDevice.Stop()
}

func (c *Client) Close() error {
	_ = c.captureDevice.Uninit()
	_ = c.playbackDevice.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
	return nil
}

// Devices run in 32-bit float format so quantization happens exactly once,
// in the codec.

func samplesFromBytes(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

func bytesFromSamples(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(sample))
	}
	return data
}
