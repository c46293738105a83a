package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/velalabs/vela-core/core/audio"
)

type canceler interface {
	Stop() bool
}

// playbackScheduler converts inbound audio chunks into gapless output.
//
// nextStart is a monotonic cursor into the output clock: each chunk is
// scheduled at max(nextStart, now) and advances the cursor by its own
// duration, so in-order enqueues play back to back no matter how delivery
// jitters. Enqueue never moves the cursor backwards; only Interrupt and
// DrainAndStop do, and both are safe to call from any goroutine without
// deadlocking an in-flight Enqueue.
type playbackScheduler struct {
	mu sync.Mutex

	output AudioOutput

	nextStart  time.Time
	active     map[uint64]*scheduledBuffer
	nextHandle uint64
	stopped    bool

	decodeFailures atomic.Uint64

	now      func() time.Time
	schedule func(d time.Duration, f func()) canceler
}

// scheduledBuffer is one decoded chunk awaiting or undergoing playback.
// The scheduler owns it exclusively; the output device only sees the
// samples for the duration of the actual write.
type scheduledBuffer struct {
	samples  []float32
	start    time.Time
	duration time.Duration

	fire     canceler
	complete canceler
}

func newPlaybackScheduler(output AudioOutput) *playbackScheduler {
	return &playbackScheduler{
		output: output,
		active: map[uint64]*scheduledBuffer{},
		now:    time.Now,
		schedule: func(d time.Duration, f func()) canceler {
			return time.AfterFunc(d, f)
		},
	}
}

// Enqueue decodes the chunk and schedules it after everything already
// queued. A chunk that fails to decode is dropped and counted; the stream
// continues.
func (s *playbackScheduler) Enqueue(chunk audio.Chunk) {
	samples, err := chunk.Samples()
	if err != nil {
		s.decodeFailures.Add(1)
		logger.Warn("dropped undecodable audio chunk", "seq", chunk.Seq, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	now := s.now()
	start := s.nextStart
	if now.After(start) {
		start = now
	}

	handle := s.nextHandle
	s.nextHandle++

	buffer := &scheduledBuffer{samples: samples, start: start, duration: chunk.Duration()}
	buffer.fire = s.schedule(start.Sub(now), func() { s.play(handle) })
	s.active[handle] = buffer

	s.nextStart = start.Add(buffer.duration)
}

// play hands the buffer's samples to the output device at its start time.
func (s *playbackScheduler) play(handle uint64) {
	s.mu.Lock()
	buffer, ok := s.active[handle]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	buffer.complete = s.schedule(buffer.duration, func() { s.finish(handle) })
	samples := buffer.samples
	s.mu.Unlock()

	if err := s.output.Write(samples); err != nil {
		logger.Warn("failed to write playback buffer", "error", err)
	}
}

// finish retires a buffer after it has naturally played out.
func (s *playbackScheduler) finish(handle uint64) {
	s.mu.Lock()
	delete(s.active, handle)
	s.mu.Unlock()
}

// Interrupt stops every playing and scheduled buffer and rewinds the
// cursor to the present, so the next enqueue plays immediately. Invoked
// when the user speaks over the model; the audible cut is intended.
func (s *playbackScheduler) Interrupt() {
	s.mu.Lock()
	s.cancelAllLocked()
	s.nextStart = s.now()
	s.mu.Unlock()

	s.output.Clear()
}

// DrainAndStop cancels everything without waiting for natural completion
// and refuses further enqueues. Idempotent; used on session teardown.
func (s *playbackScheduler) DrainAndStop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancelAllLocked()
	s.mu.Unlock()

	s.output.Clear()
}

func (s *playbackScheduler) cancelAllLocked() {
	for handle, buffer := range s.active {
		if buffer.fire != nil {
			buffer.fire.Stop()
		}
		if buffer.complete != nil {
			buffer.complete.Stop()
		}
		delete(s.active, handle)
	}
}

// DecodeFailures reports how many inbound chunks were dropped as
// malformed.
func (s *playbackScheduler) DecodeFailures() uint64 {
	return s.decodeFailures.Load()
}
