package session

import (
	"context"

	"github.com/velalabs/vela-core/core/audio"
	"github.com/velalabs/vela-core/core/transport"
)

// AudioInput is a capture device backend. StartCapture must return quickly
// and deliver frames through onFrame on the backend's own callback path;
// the frames' channel layout must match CaptureEncoding.
type AudioInput interface {
	StartCapture(ctx context.Context, onFrame func(samples []float32)) error
	StopCapture() error
	CaptureEncoding() audio.EncodingInfo
}

// AudioOutput is a playback device backend. Write appends decoded samples
// for immediate playback; Clear drops anything not yet handed to the
// hardware.
type AudioOutput interface {
	Write(samples []float32) error
	Clear()
}

// Transport dials duplex sessions against the remote conversational
// service.
type Transport interface {
	Connect(ctx context.Context, opts ...transport.ConnectOption) (transport.Session, error)
}

type ControllerOption func(*Controller)

func WithAudioInput(input AudioInput) ControllerOption {
	return func(c *Controller) { c.input = input }
}

func WithAudioOutput(output AudioOutput) ControllerOption {
	return func(c *Controller) { c.output = output }
}

func WithTransport(client Transport) ControllerOption {
	return func(c *Controller) { c.transportClient = client }
}

// WithConnectOptions forwards options to Transport.Connect on every
// attempt.
func WithConnectOptions(opts ...transport.ConnectOption) ControllerOption {
	return func(c *Controller) { c.connectOpts = append(c.connectOpts, opts...) }
}

// WithStatusCallback registers the status string stream consumed by
// presentation layers.
func WithStatusCallback(callback func(status string)) ControllerOption {
	return func(c *Controller) {
		if callback != nil {
			c.onStatus = callback
		}
	}
}

// WithTranscriptCallback is invoked once per finalized transcript entry.
func WithTranscriptCallback(callback func(entry TranscriptEntry)) ControllerOption {
	return func(c *Controller) { c.onEntry = callback }
}

// WithInterimTranscriptCallback is invoked per raw fragment, before turns
// finalize. Useful for live captions.
func WithInterimTranscriptCallback(callback func(speaker transport.Speaker, text string)) ControllerOption {
	return func(c *Controller) { c.onInterim = callback }
}

// WithFrameSize overrides how many samples make one outbound chunk.
func WithFrameSize(samples int) ControllerOption {
	return func(c *Controller) { c.frameSize = samples }
}

// WithQueueCapacity overrides the outbound chunk queue bound.
func WithQueueCapacity(chunks int) ControllerOption {
	return func(c *Controller) { c.queueCapacity = chunks }
}
