package chatstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrStallTimeout = errors.New("stream stalled: no event within the stall window")
	ErrProtocol     = errors.New("protocol violation")
	ErrConnClosed   = errors.New("stream connection closed")
)

// State is the per-connection-attempt lifecycle. Terminal states are final;
// a new attempt starts a fresh Idle cycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// DefaultStallWindow bounds how long the stream waits between events before
// giving up the connection.
const DefaultStallWindow = 60 * time.Second

// Conn abstracts the persistent connection delivering protocol events.
type Conn interface {
	// ReadEvent blocks until the next event arrives or the connection fails.
	ReadEvent() (*Event, error)
	// WriteCancel sends the user-initiated cancellation signal. The stream
	// still ends through a terminal event from the other side.
	WriteCancel() error
	Close() error
}

// Stream consumes one connection's events in arrival order and drives the
// assembler. Event handling is synchronous with respect to each event; the
// only concurrency is the reader goroutine feeding the dispatch loop.
type Stream struct {
	conn        Conn
	asm         *Assembler
	stallWindow time.Duration

	mu    sync.RWMutex
	state State
}

func NewStream(conn Conn, asm *Assembler, stallWindow time.Duration) *Stream {
	if stallWindow <= 0 {
		stallWindow = DefaultStallWindow
	}
	return &Stream{
		conn:        conn,
		asm:         asm,
		stallWindow: stallWindow,
		state:       StateIdle,
	}
}

func (s *Stream) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Cancel signals the connection to stop the in-progress generation. The
// stream acknowledges through a normal error or complete event, which
// finalizes the partial message rather than discarding it.
func (s *Stream) Cancel() error {
	return s.conn.WriteCancel()
}

// Run processes events until a terminal event, a stall timeout, a connection
// failure, or context cancellation. It always releases the connection.
func (s *Stream) Run(ctx context.Context) error {
	defer s.conn.Close()
	s.setState(StateConnecting)

	events := make(chan *Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := s.conn.ReadEvent()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	stall := time.NewTimer(s.stallWindow)
	defer stall.Stop()

	for {
		select {
		case <-ctx.Done():
			s.asm.MarkErrored("stream aborted")
			s.setState(StateErrored)
			return ctx.Err()

		case err := <-readErr:
			s.asm.MarkErrored("connection lost")
			s.setState(StateErrored)
			return fmt.Errorf("%w: %v", ErrConnClosed, err)

		case <-stall.C:
			s.asm.MarkErrored("stream stalled")
			s.setState(StateErrored)
			return ErrStallTimeout

		case ev := <-events:
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(s.stallWindow)

			if s.State() == StateConnecting {
				s.setState(StateStreaming)
			}

			terminal, err := s.dispatch(ev)
			if err != nil {
				s.asm.MarkErrored(err.Error())
				s.setState(StateErrored)
				return err
			}
			if terminal {
				return nil
			}
		}
	}
}

// dispatch applies one event. It returns terminal=true on complete/error.
// Events are processed strictly in arrival order; the assembler performs no
// reordering.
func (s *Stream) dispatch(ev *Event) (terminal bool, err error) {
	switch ev.Type {
	case EventUserPrompt, EventUserPromptProcessed:
		s.asm.setBusy()

	case EventModelRequestStart:
		s.asm.BeginMessage()

	case EventPartStart:
		var data PartStartData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.OpenPart(data.Kind)

	case EventTextDelta:
		var data TextDeltaData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.AppendText(data.Delta)

	case EventThinkingDelta:
		var data ThinkingDeltaData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.AppendThinking(data.Delta)

	case EventToolCall, EventToolCallDelta:
		var data ToolCallData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.UpsertToolCall(data)

	case EventCallToolsStart:
		s.asm.StartToolCalls()

	case EventToolResult:
		var data ToolResultData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.ResolveToolCall(data)

	case EventFinalResultStart:
		// Announces the frozen output is coming; no assembler mutation.

	case EventFinalResult:
		var data FinalResultData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.ApplyFinalResult(data)

	case EventComplete:
		s.asm.Finalize()
		s.setState(StateCompleted)
		return true, nil

	case EventError:
		var data ErrorData
		// A malformed error payload still terminates the message.
		_ = decode(ev, &data)
		if data.Message == "" {
			data.Message = "stream error"
		}
		s.asm.MarkErrored(data.Message)
		s.setState(StateErrored)
		return true, nil

	case EventConversationCreated, EventConversationUpdated:
		var meta ConversationMetaData
		if err := decode(ev, &meta); err != nil {
			return false, err
		}
		s.asm.updateMeta(meta)

	case EventMessageSaved:
		var data MessageSavedData
		if err := decode(ev, &data); err != nil {
			return false, err
		}
		s.asm.updateMeta(ConversationMetaData{})

	default:
		return false, fmt.Errorf("%w: unknown event type %q", ErrProtocol, ev.Type)
	}

	return false, nil
}

func decode(ev *Event, into interface{}) error {
	if len(ev.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Data, into); err != nil {
		return fmt.Errorf("%w: bad %s payload: %v", ErrProtocol, ev.Type, err)
	}
	return nil
}
