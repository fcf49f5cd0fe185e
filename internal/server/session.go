// Package server hosts the voice interview websocket endpoint alongside the
// health and metrics HTTP surface.
//
// Each accepted websocket connection owns exactly one [pipeline.Pipeline] and
// a pair of loops: the read loop decodes client frames and dispatches them as
// state machine events, the write loop forwards pipeline events to the client
// in the order they were produced. Closing the connection cancels any
// in-flight stage and releases the session.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/freyahq/intervox/internal/pipeline"
	"github.com/freyahq/intervox/pkg/protocol"
)

// ctlBuf is the buffer depth of the session-level control message channel
// used for protocol errors raised outside the pipeline.
const ctlBuf = 16

// Session binds one websocket connection to one pipeline.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// InterviewID is the record store interview this session belongs to.
	InterviewID string

	conn *websocket.Conn
	pipe *pipeline.Pipeline
	log  *slog.Logger
	ctl  chan *protocol.ServerMessage
}

func newSession(id, interviewID string, conn *websocket.Conn, pipe *pipeline.Pipeline, log *slog.Logger) *Session {
	return &Session{
		ID:          id,
		InterviewID: interviewID,
		conn:        conn,
		pipe:        pipe,
		log:         log,
		ctl:         make(chan *protocol.ServerMessage, ctlBuf),
	}
}

// Run drives the session until the client disconnects or ctx is cancelled.
// It always shuts the pipeline down before returning; a normal client close
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.pipe.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	err := g.Wait()

	cancel()
	s.pipe.Close()

	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		return nil
	default:
		return err
	}
}

// QuestionsAsked reports the pipeline's question progress for the final
// interview record.
func (s *Session) QuestionsAsked() int { return s.pipe.QuestionsAsked() }

// kill closes the underlying connection, unblocking both loops. Used by the
// session manager during server shutdown.
func (s *Session) kill() {
	_ = s.conn.Close(websocket.StatusGoingAway, "server shutting down")
}

// readLoop decodes inbound frames and dispatches them as pipeline events.
// Malformed frames and rejected transitions are answered with an error
// message; only transport failures end the loop.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		typ, raw, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			s.control(protocol.Error("binary frames are not supported; send JSON messages"))
			continue
		}

		msg, err := protocol.DecodeClient(raw)
		if err != nil {
			s.control(protocol.Error(err.Error()))
			continue
		}

		switch msg.Type {
		case protocol.TypeAudioChunk:
			pcm, err := msg.Audio()
			if err != nil {
				s.control(protocol.Error(err.Error()))
				continue
			}
			// Sequence and state violations surface as pipeline error
			// events; the connection itself stays up.
			_ = s.pipe.PushAudio(msg.Seq, pcm)

		case protocol.TypeStartListening:
			if err := s.pipe.StartListening(); err != nil {
				s.control(protocol.Error(err.Error()))
			}

		case protocol.TypeStopListening:
			if err := s.pipe.StopListening(); err != nil {
				s.control(protocol.Error(err.Error()))
			}

		case protocol.TypeInterrupt:
			s.pipe.Interrupt()

		case protocol.TypeConfig:
			s.pipe.SetLanguage(msg.Language)
			s.pipe.SetSpeed(msg.Speed)

		case protocol.TypeHintRequest:
			s.pipe.RequestHint()

		default:
			s.control(protocol.Error("unknown message type: " + string(msg.Type)))
		}
	}
}

// writeLoop forwards pipeline events and session control messages to the
// client. Pipeline events are never reordered; the loop ends when the
// pipeline's event channel closes or the connection fails.
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.ctl:
			if err := s.write(ctx, msg); err != nil {
				return err
			}
		case msg, ok := <-s.pipe.Events():
			if !ok {
				return nil
			}
			if err := s.write(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (s *Session) write(ctx context.Context, msg *protocol.ServerMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		s.log.Error("encode outbound message", "error", err, "type", msg.Type)
		return nil
	}
	return s.conn.Write(ctx, websocket.MessageText, raw)
}

// control queues a session-level message for the write loop. Non-blocking:
// if the client cannot keep up, protocol error messages are dropped rather
// than stalling the read loop.
func (s *Session) control(msg *protocol.ServerMessage) {
	select {
	case s.ctl <- msg:
	default:
		s.log.Warn("control message dropped: channel full", "type", msg.Type)
	}
}
