package transport

import (
	"context"
	"errors"

	"github.com/velalabs/vela-core/core/audio"
)

// Session is one established duplex connection to the remote conversational
// service. Implementations guarantee that chunks passed to Send hit the
// wire in submission order and that the handler registered with OnMessage
// is invoked once per inbound message, in arrival order, never
// concurrently. Close is idempotent and always eventually yields a
// SessionClosed message.
type Session interface {
	Send(chunk audio.Chunk) error
	OnMessage(handler func(Message))
	Close(ctx context.Context) error
}

// ErrConnection marks a failed handshake with the remote service.
var ErrConnection = errors.New("connection failed")

// Speaker tags which side of the conversation produced transcript text.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Message is the closed set of inbound protocol messages. Exactly one
// producer (the session read loop) emits them, in arrival order, and the
// compiler checks exhaustive handling wherever they are switched over.
type Message interface {
	isMessage()
}

// AudioData carries one synthesized audio chunk from the remote service.
type AudioData struct {
	Chunk audio.Chunk
}

// TranscriptFragment carries a partial piece of transcription text for one
// speaker. Fragments are not full turns; aggregation happens downstream.
type TranscriptFragment struct {
	Speaker Speaker
	Text    string
}

// TurnComplete signals that the remote service finished the current exchange.
type TurnComplete struct{}

// Interrupted signals that the user spoke over the model and any pending
// synthesized audio should be discarded.
type Interrupted struct{}

// SessionError reports a remote-signaled runtime failure that is fatal to
// the active session.
type SessionError struct {
	Reason error
}

// SessionClosed is the final message a session ever delivers. Err is nil on
// a clean shutdown. It may be synthesized locally when the remote does not
// confirm closure within the configured grace period.
type SessionClosed struct {
	Err error
}

func (AudioData) isMessage()          {}
func (TranscriptFragment) isMessage() {}
func (TurnComplete) isMessage()       {}
func (Interrupted) isMessage()        {}
func (SessionError) isMessage()       {}
func (SessionClosed) isMessage()      {}
