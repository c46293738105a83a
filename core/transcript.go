package session

import (
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/velalabs/vela-core/core/transport"
)

// TranscriptEntry is one finalized utterance. Entries are append-only and
// handed out as copies; fragments never surface here.
type TranscriptEntry struct {
	Speaker transport.Speaker
	Text    string
	Turn    int
}

// transcriptAggregator assembles streamed partial transcription text into
// finalized per-turn entries. One writer (the session message handler),
// any number of concurrent Snapshot readers.
type transcriptAggregator struct {
	mu sync.Mutex

	userAccumulator  strings.Builder
	modelAccumulator strings.Builder

	entries []TranscriptEntry
	turn    int

	onEntry    func(TranscriptEntry)
	onFragment func(speaker transport.Speaker, text string)
}

func newTranscriptAggregator(onEntry func(TranscriptEntry), onFragment func(transport.Speaker, string)) *transcriptAggregator {
	return &transcriptAggregator{onEntry: onEntry, onFragment: onFragment}
}

// OnFragment appends text to the speaker's current accumulator. Fragments
// are unbounded; the whole turn is held in memory until it completes.
func (t *transcriptAggregator) OnFragment(speaker transport.Speaker, text string) {
	t.mu.Lock()
	switch speaker {
	case transport.SpeakerUser:
		t.userAccumulator.WriteString(text)
	case transport.SpeakerModel:
		t.modelAccumulator.WriteString(text)
	}
	t.mu.Unlock()

	if t.onFragment != nil {
		t.onFragment(speaker, text)
	}
}

// OnTurnComplete finalizes the accumulated text into entries, user before
// model regardless of how the raw fragments interleaved, and resets both
// accumulators for the next turn.
func (t *transcriptAggregator) OnTurnComplete() {
	t.mu.Lock()

	var finalized []TranscriptEntry
	if t.userAccumulator.Len() > 0 {
		finalized = append(finalized, TranscriptEntry{
			Speaker: transport.SpeakerUser,
			Text:    t.userAccumulator.String(),
			Turn:    t.turn,
		})
	}
	if t.modelAccumulator.Len() > 0 {
		finalized = append(finalized, TranscriptEntry{
			Speaker: transport.SpeakerModel,
			Text:    t.modelAccumulator.String(),
			Turn:    t.turn,
		})
	}

	t.userAccumulator.Reset()
	t.modelAccumulator.Reset()
	if len(finalized) > 0 {
		t.entries = append(t.entries, finalized...)
		t.turn++
	}
	t.mu.Unlock()

	if t.onEntry != nil {
		for _, entry := range finalized {
			t.onEntry(entry)
		}
	}
}

// Snapshot returns a copy of the finalized log so far. Safe to call while
// aggregation is ongoing.
func (t *transcriptAggregator) Snapshot() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []TranscriptEntry
	copier.Copy(&entries, t.entries)
	return entries
}
