package session

import (
	"sync"
	"testing"
	"time"

	"github.com/velalabs/vela-core/core/audio"
)

type fakeOutput struct {
	mu     sync.Mutex
	writes [][]float32
	clears int
}

func (o *fakeOutput) Write(samples []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, samples)
	return nil
}

func (o *fakeOutput) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clears++
}

func (o *fakeOutput) clearCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clears
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasStopped := t.stopped
	t.stopped = true
	return !wasStopped
}

// scheduleRecorder captures every timer the scheduler arms instead of
// letting wall time drive playback.
type scheduleRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	timers []*fakeTimer
}

func (r *scheduleRecorder) schedule(d time.Duration, f func()) canceler {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer := &fakeTimer{fn: f}
	r.delays = append(r.delays, d)
	r.timers = append(r.timers, timer)
	return timer
}

func (r *scheduleRecorder) recordedDelays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func (r *scheduleRecorder) fire(i int) {
	r.mu.Lock()
	timer := r.timers[i]
	r.mu.Unlock()
	timer.fn()
}

func newTestScheduler(output AudioOutput) (*playbackScheduler, *scheduleRecorder, *time.Time) {
	scheduler := newPlaybackScheduler(output)
	recorder := &scheduleRecorder{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	scheduler.now = func() time.Time { return *clock }
	scheduler.schedule = recorder.schedule
	return scheduler, recorder, clock
}

func playbackChunk(t *testing.T, samples int, seq uint64) audio.Chunk {
	t.Helper()
	return audio.NewChunk(make([]float32, samples), audio.DefaultPlaybackEncoding(), seq)
}

func TestPlaybackSchedulesChunksBackToBack(t *testing.T) {
	scheduler, recorder, _ := newTestScheduler(&fakeOutput{})

	// 2400 samples at 24kHz is 100ms per chunk.
	for seq := range uint64(3) {
		scheduler.Enqueue(playbackChunk(t, 2400, seq))
	}

	delays := recorder.recordedDelays()
	if len(delays) != 3 {
		t.Fatalf("expected 3 scheduled chunks, got %d", len(delays))
	}
	duration := 100 * time.Millisecond
	for i, delay := range delays {
		if want := time.Duration(i) * duration; delay != want {
			t.Errorf("chunk %d scheduled at +%s, expected +%s", i, delay, want)
		}
	}
}

func TestPlaybackStartsImmediatelyAfterIdle(t *testing.T) {
	scheduler, recorder, clock := newTestScheduler(&fakeOutput{})

	scheduler.Enqueue(playbackChunk(t, 2400, 0))
	*clock = clock.Add(time.Second) // queue has long since drained

	scheduler.Enqueue(playbackChunk(t, 2400, 1))

	delays := recorder.recordedDelays()
	if delays[1] != 0 {
		t.Errorf("expected chunk after idle gap to start immediately, got +%s", delays[1])
	}
}

func TestInterruptResetsCursorToNow(t *testing.T) {
	output := &fakeOutput{}
	scheduler, recorder, clock := newTestScheduler(output)

	for seq := range uint64(3) {
		scheduler.Enqueue(playbackChunk(t, 2400, seq))
	}

	*clock = clock.Add(50 * time.Millisecond)
	scheduler.Interrupt()

	if output.clearCount() != 1 {
		t.Errorf("expected output cleared once, got %d", output.clearCount())
	}
	for i, timer := range recorder.timers {
		if !timer.stopped {
			t.Errorf("expected scheduled chunk %d cancelled after interrupt", i)
		}
	}

	scheduler.Enqueue(playbackChunk(t, 2400, 3))
	delays := recorder.recordedDelays()
	if got := delays[len(delays)-1]; got != 0 {
		t.Errorf("expected first chunk after interrupt to start immediately, got +%s", got)
	}
}

func TestPlaybackFiringWritesToOutput(t *testing.T) {
	output := &fakeOutput{}
	scheduler, recorder, _ := newTestScheduler(output)

	scheduler.Enqueue(playbackChunk(t, 2400, 0))
	recorder.fire(0)

	output.mu.Lock()
	defer output.mu.Unlock()
	if len(output.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(output.writes))
	}
	if len(output.writes[0]) != 2400 {
		t.Errorf("expected 2400 samples written, got %d", len(output.writes[0]))
	}
}

func TestDrainAndStopIsIdempotent(t *testing.T) {
	output := &fakeOutput{}
	scheduler, recorder, _ := newTestScheduler(output)

	scheduler.Enqueue(playbackChunk(t, 2400, 0))
	scheduler.DrainAndStop()
	scheduler.DrainAndStop()

	if output.clearCount() != 1 {
		t.Errorf("expected exactly one clear, got %d", output.clearCount())
	}

	scheduler.Enqueue(playbackChunk(t, 2400, 1))
	if len(recorder.recordedDelays()) != 1 {
		t.Error("expected enqueue after stop to be ignored")
	}
}

func TestMalformedChunkIsDroppedWithoutStalling(t *testing.T) {
	scheduler, recorder, _ := newTestScheduler(&fakeOutput{})

	scheduler.Enqueue(playbackChunk(t, 2400, 0))
	scheduler.Enqueue(audio.Chunk{Data: []byte{0x01}, Encoding: audio.DefaultPlaybackEncoding(), Seq: 1})
	scheduler.Enqueue(playbackChunk(t, 2400, 2))

	if got := scheduler.DecodeFailures(); got != 1 {
		t.Errorf("expected 1 decode failure, got %d", got)
	}
	delays := recorder.recordedDelays()
	if len(delays) != 2 {
		t.Fatalf("expected 2 playable chunks, got %d", len(delays))
	}
	if delays[1] != 100*time.Millisecond {
		t.Errorf("expected stream to continue gaplessly past the bad chunk, got +%s", delays[1])
	}
}

func TestSequenceGapsDoNotStallPlayback(t *testing.T) {
	scheduler, recorder, _ := newTestScheduler(&fakeOutput{})

	for _, seq := range []uint64{0, 1, 3, 4} {
		scheduler.Enqueue(playbackChunk(t, 2400, seq))
	}

	delays := recorder.recordedDelays()
	if len(delays) != 4 {
		t.Fatalf("expected all 4 chunks scheduled, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] != delays[i-1]+100*time.Millisecond {
			t.Errorf("expected chunk %d to follow its predecessor without a gap, got +%s after +%s",
				i, delays[i], delays[i-1])
		}
	}
}
