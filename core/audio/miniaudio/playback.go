//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/velalabs/vela-core/core/audio"
)

type playbackDevice struct {
	device   *malgo.Device
	config   malgo.DeviceConfig
	encoding audio.EncodingInfo

	pending []byte

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (p *playbackDevice) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * encoding.Channels

	p.encoding = encoding
	p.config = malgo.DefaultDeviceConfig(malgo.Playback)
	p.config.SampleRate = uint32(encoding.SampleRate)
	p.config.Playback.Format = format
	p.config.Playback.Channels = uint32(encoding.Channels)
	p.config.Alsa.NoMMap = 1
	p.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	p.config.Periods = 4

	var err error
	if p.device, err = malgo.InitDevice(
		audioContext.Context,
		p.config,
		malgo.DeviceCallbacks{Data: p.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("%w: failed to initialize playback device: %v",
			audio.ErrDeviceUnavailable, err)
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("%w: failed to start playback device: %v",
			audio.ErrDeviceUnavailable, err)
	}

	return nil
}

// Write appends decoded samples to the device feed. The device callback
// consumes them at its own pace; scheduling decisions happen upstream.
func (p *playbackDevice) Write(samples []float32) error {
	if p.device == nil {
		return fmt.Errorf("%w: playback device not initialized", audio.ErrDeviceUnavailable)
	}

	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	p.pending = append(p.pending, bytesFromSamples(samples)...)
	return nil
}

// Clear drops everything not yet handed to the hardware. This is the only
// audibly discontinuous operation.
func (p *playbackDevice) Clear() {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	p.pending = nil
}

func (p *playbackDevice) Uninit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}

	p.Clear()
	return nil
}

func (p *playbackDevice) PlaybackEncoding() audio.EncodingInfo {
	return p.encoding
}

// processAudio runs on the hardware callback and must never block beyond
// the buffer mutex; underruns fill with silence.
func (p *playbackDevice) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		p.audioMu.Lock()
		defer p.audioMu.Unlock()

		if len(p.pending) == 0 {
			return
		}

		if len(p.pending) < need {
			copy(pOutput, p.pending)
			p.pending = nil
			return
		}

		copy(pOutput, p.pending[:need])
		p.pending = p.pending[need:]
	}
}
