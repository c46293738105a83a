package session

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/velalabs/vela-core/core/transport"
)

// Controller drives one voice conversation at a time: it owns the capture
// device, the remote session and the playback device, and keeps their
// lifecycles converging no matter which side fails first.
//
// Every start attempt gets a fresh generation number. Callbacks arriving
// from a previous attempt (late transport messages, stale outbound pumps)
// compare their generation against the current one and drop themselves,
// so a quick stop/start cycle never cross-wires two sessions.
type Controller struct {
	mu sync.Mutex

	state      State
	generation uint64
	lastErr    error

	input           AudioInput
	output          AudioOutput
	transportClient Transport
	connectOpts     []transport.ConnectOption

	frameSize     int
	queueCapacity int

	statusCh  chan string
	onStatus  func(status string)
	onEntry   func(entry TranscriptEntry)
	onInterim func(speaker transport.Speaker, text string)

	// Per-attempt components, rebuilt on every Start.
	capture    *captureEncoder
	playback   *playbackScheduler
	transcript *transcriptAggregator
	session    transport.Session
}

func NewController(opts ...ControllerOption) *Controller {
	controller := &Controller{
		state:         StateIdle,
		frameSize:     defaultFrameSize,
		queueCapacity: defaultQueueCapacity,
		statusCh:      make(chan string, 16),
	}
	for _, opt := range opts {
		opt(controller)
	}
	if controller.onStatus != nil {
		go func() {
			for status := range controller.statusCh {
				controller.onStatus(status)
			}
		}()
	}
	return controller
}

// Start acquires the microphone, dials the remote session and begins
// streaming. It returns ErrSessionActive while a previous session is
// still starting, active or closing, and ErrNotConfigured when a device
// or transport was never provided.
//
// On failure everything acquired so far is released and the controller
// returns to Idle, ready for another attempt.
func (c *Controller) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.Start")
	defer span.End()

	c.mu.Lock()
	if !c.state.startable() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if c.input == nil || c.output == nil || c.transportClient == nil {
		c.mu.Unlock()
		return ErrNotConfigured
	}

	c.generation++
	generation := c.generation
	c.lastErr = nil
	c.capture = newCaptureEncoder(c.input, c.frameSize, c.queueCapacity)
	c.playback = newPlaybackScheduler(c.output)
	c.transcript = newTranscriptAggregator(c.onEntry, c.onInterim)
	c.session = nil
	capture := c.capture
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := capture.Start(ctx); err != nil {
		err = fmt.Errorf("failed to start audio capture: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture device unavailable")
		c.abortStart(generation, err)
		return err
	}

	connectOpts := append(
		[]transport.ConnectOption{transport.WithCaptureEncoding(c.input.CaptureEncoding())},
		c.connectOpts...,
	)
	liveSession, err := c.transportClient.Connect(ctx, connectOpts...)
	if err != nil {
		err = fmt.Errorf("failed to connect session: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session connect failed")
		if stopErr := capture.Stop(); stopErr != nil {
			logger.WarnContext(ctx, "failed to release capture device after connect failure", "error", stopErr)
		}
		c.abortStart(generation, err)
		return err
	}

	c.mu.Lock()
	if c.generation != generation {
		// Another Start/Stop raced us; this attempt no longer owns the
		// controller, so release what it acquired.
		c.mu.Unlock()
		_ = capture.Stop()
		_ = liveSession.Close(ctx)
		return ErrSessionActive
	}
	c.session = liveSession
	c.setStateLocked(StateActive)
	c.mu.Unlock()

	liveSession.OnMessage(func(msg transport.Message) {
		c.handleMessage(generation, msg)
	})
	go c.pumpOutbound(capture, liveSession)

	logger.InfoContext(ctx, "session started")
	return nil
}

// abortStart returns a failed start attempt to Idle, unless a newer
// attempt has already taken over.
func (c *Controller) abortStart(generation uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return
	}
	c.lastErr = err
	c.setStateLocked(StateIdle)
}

// Stop tears the session down: microphone first so no new audio leaves,
// then playback, then the transport. It is idempotent and convergent;
// calling it in any state, any number of times, ends with the controller
// Closed.
func (c *Controller) Stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.Stop")
	defer span.End()

	c.mu.Lock()
	switch c.state {
	case StateIdle, StateClosed:
		c.setStateLocked(StateClosed)
		c.mu.Unlock()
		return nil
	case StateClosing:
		c.mu.Unlock()
		return nil
	}
	c.generation++
	c.setStateLocked(StateClosing)
	capture, playback, liveSession := c.capture, c.playback, c.session
	c.capture, c.playback, c.transcript, c.session = nil, nil, nil, nil
	c.mu.Unlock()

	c.teardown(ctx, span, capture, playback, liveSession)

	c.mu.Lock()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	logger.InfoContext(ctx, "session stopped")
	return nil
}

func (c *Controller) teardown(ctx context.Context, span trace.Span, capture *captureEncoder, playback *playbackScheduler, liveSession transport.Session) {
	if capture != nil {
		if err := capture.Stop(); err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "failed to stop audio capture", "error", err)
		}
	}
	if playback != nil {
		playback.DrainAndStop()
	}
	if liveSession != nil {
		if err := liveSession.Close(ctx); err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "failed to close session", "error", err)
		}
	}
}

// handleMessage routes one inbound transport message. Messages from a
// superseded generation are dropped wholesale.
func (c *Controller) handleMessage(generation uint64, msg transport.Message) {
	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	playback, transcript := c.playback, c.transcript
	c.mu.Unlock()

	switch msg := msg.(type) {
	case transport.AudioData:
		playback.Enqueue(msg.Chunk)
	case transport.TranscriptFragment:
		transcript.OnFragment(msg.Speaker, msg.Text)
	case transport.TurnComplete:
		transcript.OnTurnComplete()
	case transport.Interrupted:
		playback.Interrupt()
	case transport.SessionError:
		c.fail(generation, msg.Reason)
	case transport.SessionClosed:
		c.handleClosed(generation, msg.Err)
	}
}

// fail records a session-fatal error and tears everything down, landing
// in Error so the user-facing status reflects that this was not a clean
// goodbye. The controller remains startable.
func (c *Controller) fail(generation uint64, reason error) {
	ctx, span := tracer.Start(context.Background(), "session.fail")
	defer span.End()
	span.RecordError(reason)
	span.SetStatus(codes.Error, "session failed")

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.lastErr = reason
	capture, playback, liveSession := c.capture, c.playback, c.session
	c.capture, c.playback, c.transcript, c.session = nil, nil, nil, nil
	c.mu.Unlock()

	logger.ErrorContext(ctx, "session failed", "error", reason)
	c.teardown(ctx, span, capture, playback, liveSession)

	c.mu.Lock()
	c.setStateLocked(StateError)
	c.mu.Unlock()
}

// handleClosed reacts to the transport announcing closure on its own,
// e.g. the server hanging up. A closure we initiated ourselves arrives
// with a stale generation and is ignored.
func (c *Controller) handleClosed(generation uint64, err error) {
	if err != nil {
		c.fail(generation, err)
		return
	}

	ctx, span := tracer.Start(context.Background(), "session.remoteClosed")
	defer span.End()

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	capture, playback := c.capture, c.playback
	c.capture, c.playback, c.transcript, c.session = nil, nil, nil, nil
	c.mu.Unlock()

	logger.InfoContext(ctx, "session closed by remote")
	c.teardown(ctx, span, capture, playback, nil)

	c.mu.Lock()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()
}

// pumpOutbound forwards encoded microphone chunks to the transport until
// the capture side finishes, then drains whatever is left in the queue.
func (c *Controller) pumpOutbound(capture *captureEncoder, liveSession transport.Session) {
	for {
		select {
		case chunk := <-capture.Chunks():
			if err := liveSession.Send(chunk); err != nil {
				logger.Warn("failed to send audio chunk", "seq", chunk.Seq, "error", err)
				return
			}
		case <-capture.Done():
			for {
				select {
				case chunk := <-capture.Chunks():
					if err := liveSession.Send(chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports the current state as a user-presentable string, the
// same one delivered through WithStatusCallback.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.status()
}

// Err reports the error that moved the controller into its current
// state, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns the finalized conversation so far. It is empty
// outside an active session.
func (c *Controller) Transcript() []TranscriptEntry {
	c.mu.Lock()
	transcript := c.transcript
	c.mu.Unlock()
	if transcript == nil {
		return nil
	}
	return transcript.Snapshot()
}

// setStateLocked transitions the state and queues the user-facing status
// string. The queue keeps callbacks ordered and off the controller lock;
// when a consumer falls far behind the oldest status is dropped, as only
// the latest ones still describe reality.
func (c *Controller) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onStatus == nil {
		return
	}
	status := state.status()
	for {
		select {
		case c.statusCh <- status:
			return
		default:
			select {
			case <-c.statusCh:
			default:
			}
		}
	}
}
