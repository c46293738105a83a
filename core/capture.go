package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/velalabs/vela-core/core/audio"
)

const (
	// defaultFrameSize is how many samples make one outbound chunk:
	// 4096 samples at 16kHz, 256ms of audio.
	defaultFrameSize = 4096

	defaultQueueCapacity = 32
)

// captureEncoder turns the device's irregular hardware frames into
// fixed-size encoded chunks on a bounded queue. One instance serves one
// session attempt; a new attempt builds a fresh encoder.
//
// The hardware callback path never blocks: when the queue is full the
// oldest unflushed chunk is evicted and counted, never surfaced as an
// error.
type captureEncoder struct {
	input     AudioInput
	frameSize int

	queue chan audio.Chunk
	done  chan struct{}

	mu      sync.Mutex
	pending []float32

	seq     atomic.Uint64
	dropped atomic.Uint64
	started atomic.Bool
	stopped atomic.Bool
}

func newCaptureEncoder(input AudioInput, frameSize, queueCapacity int) *captureEncoder {
	if frameSize <= 0 {
		frameSize = defaultFrameSize
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}

	return &captureEncoder{
		input:     input,
		frameSize: frameSize,
		queue:     make(chan audio.Chunk, queueCapacity),
		done:      make(chan struct{}),
	}
}

// Start acquires the input device and begins producing chunks. The device
// is held exclusively until Stop.
func (c *captureEncoder) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.input.StartCapture(ctx, c.onFrame); err != nil {
		c.started.Store(false)
		return err
	}
	return nil
}

// Stop is idempotent: it releases the device, flushes the partial frame
// still accumulating, and signals consumers that no more chunks follow.
func (c *captureEncoder) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}

	err := c.input.StopCapture()

	// The device is stopped, so the callback no longer runs and pending
	// is ours to flush.
	c.mu.Lock()
	if len(c.pending) > 0 {
		c.push(audio.NewChunk(c.pending, c.input.CaptureEncoding(), c.seq.Add(1)-1))
		c.pending = nil
	}
	c.mu.Unlock()

	close(c.done)
	return err
}

// Chunks is the outbound queue. Consumers must also watch Done: the queue
// is never closed because the hardware callback may still be racing a
// Stop.
func (c *captureEncoder) Chunks() <-chan audio.Chunk { return c.queue }

// Done is closed once Stop has flushed the queue's producer side.
func (c *captureEncoder) Done() <-chan struct{} { return c.done }

// Dropped reports how many chunks were evicted because the queue was full.
func (c *captureEncoder) Dropped() uint64 { return c.dropped.Load() }

func (c *captureEncoder) onFrame(samples []float32) {
	if c.stopped.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.frameSize {
		frame := c.pending[:c.frameSize:c.frameSize]
		c.pending = c.pending[c.frameSize:]
		c.push(audio.NewChunk(frame, c.input.CaptureEncoding(), c.seq.Add(1)-1))
	}
}

// push enqueues without blocking; on a full queue the oldest chunk loses.
func (c *captureEncoder) push(chunk audio.Chunk) {
	for {
		select {
		case c.queue <- chunk:
			return
		default:
		}

		select {
		case <-c.queue:
			c.dropped.Add(1)
		default:
		}
	}
}
