//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/velalabs/vela-core/core/audio"
)

type captureDevice struct {
	device   *malgo.Device
	config   malgo.DeviceConfig
	encoding audio.EncodingInfo

	onFrame func(samples []float32)

	mu sync.Mutex
}

func (c *captureDevice) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * encoding.Channels

	c.encoding = encoding
	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(encoding.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(encoding.Channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			if c.onFrame != nil {
				c.onFrame(samplesFromBytes(pInput[:n]))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize capture device: %v",
			audio.ErrDeviceUnavailable, err)
	}

	return nil
}

func (c *captureDevice) Start(onFrame func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("%w: capture device not initialized", audio.ErrDeviceUnavailable)
	} else if c.device.IsStarted() {
		return nil
	}

	c.onFrame = onFrame
	if err := c.device.Start(); err != nil {
		c.onFrame = nil
		return fmt.Errorf("%w: failed to start capture device: %v",
			audio.ErrDeviceUnavailable, err)
	}

	return nil
}

func (c *captureDevice) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil || !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	c.onFrame = nil
	return nil
}

func (c *captureDevice) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.onFrame = nil
	return nil
}

func (c *captureDevice) CaptureEncoding() audio.EncodingInfo {
	return c.encoding
}
