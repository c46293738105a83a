package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/velalabs/vela-core/core/audio"
	"github.com/velalabs/vela-core/core/transport"
)

// ErrTimeout is reported on the synthesized [transport.SessionClosed] when
// the remote does not confirm shutdown within the close grace period.
var ErrTimeout = errors.New("timed out waiting for session close")

// Session is one live duplex connection. Outbound chunks go through a
// single writer goroutine so submission order is preserved on the wire;
// inbound frames go through a single dispatch goroutine so the registered
// handler is never invoked concurrently.
type Session struct {
	id      string
	conn    *websocket.Conn
	options transport.ConnectOptions

	sendCh chan audio.Chunk
	msgCh  chan transport.Message

	handlerOnce sync.Once
	closeOnce   sync.Once
	closing     chan struct{}
	readDone    chan struct{}

	closedEmitted atomic.Bool
	inboundSeq    atomic.Uint64
	droppedChunks atomic.Uint64
}

func newSession(conn *websocket.Conn, options transport.ConnectOptions) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		options:  options,
		sendCh:   make(chan audio.Chunk, 64),
		msgCh:    make(chan transport.Message, 256),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}

	go s.writeLoop()
	go s.readLoop()

	return s
}

func (s *Session) ID() string { return s.id }

// DroppedChunks reports how many inbound frames were absorbed because their
// audio payload could not be decoded.
func (s *Session) DroppedChunks() uint64 { return s.droppedChunks.Load() }

// Send queues one capture chunk for transmission. Fire-and-forget: a nil
// return means the chunk was accepted for ordered delivery, not that it hit
// the wire.
func (s *Session) Send(chunk audio.Chunk) error {
	select {
	case <-s.closing:
		return fmt.Errorf("session %s is closed", s.id)
	default:
	}

	select {
	case s.sendCh <- chunk:
		return nil
	case <-s.closing:
		return fmt.Errorf("session %s is closed", s.id)
	}
}

// OnMessage registers the inbound handler and starts delivery. Only the
// first registration takes effect. Delivery stops after SessionClosed.
func (s *Session) OnMessage(handler func(transport.Message)) {
	if handler == nil {
		return
	}

	s.handlerOnce.Do(func() {
		go func() {
			for msg := range s.msgCh {
				handler(msg)
				if _, ok := msg.(transport.SessionClosed); ok {
					return
				}
			}
		}()
	})
}

// Close terminates the session: flushes queued outbound audio, sends the
// websocket close frame, and waits for the remote to confirm. If no
// confirmation arrives within the grace period a SessionClosed is
// synthesized locally so consumers always observe closure. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closing)

		select {
		case <-s.readDone:
		case <-time.After(s.options.CloseGracePeriod):
			logger.Warn("remote did not confirm close within grace period, synthesizing closure",
				"session_id", s.id)
			s.emitClosed(ErrTimeout)
			closeErr = ErrTimeout
		case <-ctx.Done():
			s.emitClosed(ctx.Err())
			closeErr = ctx.Err()
		}

		s.conn.Close()
	})
	return closeErr
}

// writeLoop is the sole writer on the connection after setup. On shutdown
// it flushes whatever is already queued before sending the close frame.
func (s *Session) writeLoop() {
	for {
		select {
		case chunk := <-s.sendCh:
			s.writeChunk(chunk)
		case <-s.closing:
			for {
				select {
				case chunk := <-s.sendCh:
					s.writeChunk(chunk)
				default:
					s.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (s *Session) writeChunk(chunk audio.Chunk) {
	if chunk.Encoding.IsZero() {
		chunk.Encoding = s.options.CaptureEncoding
	}
	if err := s.conn.WriteJSON(newAudioMessage(chunk)); err != nil {
		// The read loop observes the broken connection and reports it;
		// writes just drop.
		logger.Warn("failed to write audio chunk", "session_id", s.id, "error", err)
	}
}

func (s *Session) readLoop() {
	defer close(s.readDone)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		messages, dropped, err := decodeServerMessage(data, s.nextSeq)
		if err != nil {
			s.droppedChunks.Add(1)
			logger.Warn("dropped undecodable server frame", "session_id", s.id, "error", err)
		}
		if dropped > 0 {
			// Malformed audio parts are dropped, the stream continues.
			// Everything else decoded from the same frame still delivers.
			s.droppedChunks.Add(uint64(dropped))
		}

		for _, msg := range messages {
			s.emit(msg)
		}
	}
}

func (s *Session) handleReadError(err error) {
	select {
	case <-s.closing:
		s.emitClosed(nil)
		return
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.emitClosed(nil)
		return
	}

	s.emit(transport.SessionError{Reason: err})
	s.emitClosed(err)
}

func (s *Session) emit(msg transport.Message) {
	if s.closedEmitted.Load() {
		return
	}
	s.msgCh <- msg
}

// emitClosed delivers the terminal SessionClosed exactly once. It must
// never block: when no handler was registered the buffer may be full, so
// older messages are evicted until the terminal one fits. A consumer that
// attaches late still observes closure.
func (s *Session) emitClosed(err error) {
	if !s.closedEmitted.CompareAndSwap(false, true) {
		return
	}

	msg := transport.SessionClosed{Err: err}
	for {
		select {
		case s.msgCh <- msg:
			return
		default:
			select {
			case <-s.msgCh:
			default:
			}
		}
	}
}

func (s *Session) nextSeq() uint64 {
	return s.inboundSeq.Add(1) - 1
}
