//go:build cgo

package portaudio

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/velalabs/vela-core/core/audio"
)

// Client is an alternate capture backend built on PortAudio. It pulls frames
// from the default input device in a reader loop instead of a hardware
// callback, which is handy on hosts where miniaudio misbehaves.
type Client struct {
	frameSize int
	encoding  audio.EncodingInfo
	stream    *portaudio.Stream

	in        []float32
	capturing atomic.Bool
	stop      chan struct{}
}

func NewClient(frameSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v",
			audio.ErrDeviceUnavailable, err)
	}

	encoding := audio.DefaultCaptureEncoding()
	in := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(encoding.Channels, 0, float64(encoding.SampleRate), frameSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open portaudio stream: %v",
			audio.ErrDeviceUnavailable, err)
	}

	return &Client{
		frameSize: frameSize,
		encoding:  encoding,
		stream:    stream,
		in:        in,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onFrame func(samples []float32)) error {
	if !c.capturing.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		c.capturing.Store(false)
		return fmt.Errorf("%w: failed to start portaudio stream: %v",
			audio.ErrDeviceUnavailable, err)
	}

	c.stop = make(chan struct{})
	go c.readFrames(ctx, c.stop, onFrame)
	return nil
}

func (c *Client) readFrames(ctx context.Context, stop <-chan struct{}, onFrame func(samples []float32)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
			if err := c.stream.Read(); err != nil {
				// Overflows just mean we were late picking up a frame;
				// skip it and keep reading.
				continue
			}

			frame := make([]float32, len(c.in))
			copy(frame, c.in)
			onFrame(frame)
		}
	}
}

func (c *Client) StopCapture() error {
	if !c.capturing.CompareAndSwap(true, false) {
		return nil
	}

	close(c.stop)
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	_ = c.StopCapture()
	c.stream.Close()
	return portaudio.Terminate()
}

func (c *Client) CaptureEncoding() audio.EncodingInfo {
	return c.encoding
}
