// Package session binds one voice front end connection to a response
// controller.
//
// A Session translates inbound events into controller calls and controller
// frames into transport writes. Each turn runs on its own goroutine so the
// transport read loop keeps serving keepalives and new turns while a reply
// streams. Turns are correlated only by response id.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
	"github.com/AltairaLabs/callrelay/runtime/logger"
	metrics "github.com/AltairaLabs/callrelay/runtime/metrics/prometheus"
	"github.com/AltairaLabs/callrelay/runtime/protocol"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/responder"
	"github.com/AltairaLabs/callrelay/runtime/telemetry"
	"github.com/AltairaLabs/callrelay/runtime/types"
)

// ErrSessionClosed is returned for operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// FrameSink writes outbound messages to the transport. Implementations must
// be safe for concurrent use.
type FrameSink interface {
	WriteFrame(frame types.Frame) error
	WritePingPong(pong types.PingPong) error
}

// SupersedePolicy decides what happens to a turn still streaming when a
// newer turn arrives.
type SupersedePolicy string

const (
	// SupersedeInterleave lets older turns finish; frames of different
	// response ids may interleave on the wire.
	SupersedeInterleave SupersedePolicy = "interleave"

	// SupersedeCancel cancels every older in-flight turn. A cancelled turn
	// still emits its terminal frame.
	SupersedeCancel SupersedePolicy = "cancel"
)

// ParseSupersedePolicy converts a configuration value into a policy.
// The empty string selects SupersedeInterleave.
func ParseSupersedePolicy(s string) (SupersedePolicy, error) {
	switch SupersedePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SupersedeInterleave:
		return SupersedeInterleave, nil
	case SupersedeCancel:
		return SupersedeCancel, nil
	default:
		return "", fmt.Errorf("unknown supersede policy %q", s)
	}
}

// Config holds the dependencies of a Session.
type Config struct {
	// ID identifies the session. Generated when empty.
	ID string

	// CallID is the telephony call id, usually taken from the URL.
	CallID string

	Sink       FrameSink
	Controller *responder.Controller

	// Provider is closed when the session closes. Optional.
	Provider providers.Provider

	Policy SupersedePolicy
	Tracer trace.Tracer
}

// Session is the adapter between one connection and the controller.
type Session struct {
	id         string
	sink       FrameSink
	controller *responder.Controller
	provider   providers.Provider
	policy     SupersedePolicy
	tracer     trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	mu        sync.Mutex
	callID    string
	connected bool
	closing   bool
	inflight  map[int]*inflightTurn
	wg        sync.WaitGroup

	// gate blocks writes while the session is being marked closed.
	gate   sync.RWMutex
	closed bool
}

// New creates a Session. OnConnect must be called before any turn.
func New(cfg Config) (*Session, error) {
	if cfg.Sink == nil {
		return nil, pkgerrors.New("session", "New", errors.New("frame sink is required"))
	}
	if cfg.Controller == nil {
		return nil, pkgerrors.New("session", "New", errors.New("controller is required"))
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Policy == "" {
		cfg.Policy = SupersedeInterleave
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer(nil)
	}

	return &Session{
		id:         cfg.ID,
		callID:     cfg.CallID,
		sink:       cfg.Sink,
		controller: cfg.Controller,
		provider:   cfg.Provider,
		policy:     cfg.Policy,
		tracer:     cfg.Tracer,
		inflight:   make(map[int]*inflightTurn),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// CallID returns the call id, which call_details may set after connect.
func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// OnConnect opens the session span and sends the greeting. The session
// context is detached from ctx's cancellation and ends at OnClose.
func (s *Session) OnConnect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected || s.closing {
		s.mu.Unlock()
		return pkgerrors.New("session", "OnConnect", ErrSessionClosed)
	}
	base := logger.WithSessionID(context.WithoutCancel(ctx), s.id)
	if s.callID != "" {
		base = logger.WithCallID(base, s.callID)
	}
	base, s.span = telemetry.StartSessionSpan(base, s.tracer, s.id, s.callID)
	s.ctx, s.cancel = context.WithCancel(base)
	s.connected = true
	sessCtx := s.ctx
	s.mu.Unlock()

	metrics.RecordSessionStart()
	logger.InfoContext(sessCtx, "Session opened", "supersede", string(s.policy))

	return s.controller.Greet(sessCtx, s.emit)
}

// OnResponseRequired starts answering turn and returns immediately.
func (s *Session) OnResponseRequired(turn *types.TurnRequest) error {
	return s.startTurn(turn)
}

// OnReminderRequired starts a re-prompt turn and returns immediately.
func (s *Session) OnReminderRequired(turn *types.TurnRequest) error {
	return s.startTurn(turn)
}

// OnPingPong echoes a keepalive.
func (s *Session) OnPingPong(timestamp int64) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.sink.WritePingPong(types.NewPingPong(timestamp)); err != nil {
		return err
	}
	metrics.RecordFrame(metrics.FramePingPong)
	return nil
}

// OnUpdateOnly accepts a transcript update that owes no reply.
func (s *Session) OnUpdateOnly(transcript []types.Utterance) {
	logger.DebugContext(s.logContext(), "Transcript update", "utterances", len(transcript))
}

// OnCallDetails records call metadata on the session.
func (s *Session) OnCallDetails(details *protocol.CallDetails) {
	if details == nil {
		return
	}
	s.mu.Lock()
	if details.CallID != "" && s.callID == "" {
		s.callID = details.CallID
	}
	span := s.span
	s.mu.Unlock()

	if span != nil && details.CallID != "" {
		span.SetAttributes(attribute.String(telemetry.AttrCallID, details.CallID))
	}
	logger.InfoContext(s.logContext(), "Call details received",
		"details_call_id", details.CallID,
		"agent_id", details.AgentID)
}

// HandleEvent routes a decoded inbound event.
func (s *Session) HandleEvent(evt *protocol.Event) error {
	switch evt.InteractionType {
	case types.InteractionResponseRequired:
		return s.OnResponseRequired(evt.Turn())
	case types.InteractionReminderRequired:
		return s.OnReminderRequired(evt.Turn())
	case types.InteractionPingPong:
		return s.OnPingPong(evt.Timestamp)
	case types.InteractionUpdateOnly:
		s.OnUpdateOnly(evt.Transcript)
		return nil
	case types.InteractionCallDetails:
		s.OnCallDetails(evt.Call)
		return nil
	default:
		return fmt.Errorf("%w: unhandled interaction type %q", protocol.ErrInvalidEvent, evt.InteractionType)
	}
}

func (s *Session) startTurn(turn *types.TurnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.closing {
		return ErrSessionClosed
	}
	if !turn.InteractionType.RequiresResponse() {
		return fmt.Errorf("%w: %q does not start a turn", protocol.ErrInvalidEvent, turn.InteractionType)
	}

	if s.policy == SupersedeCancel {
		for id, t := range s.inflight {
			if id < turn.ResponseID {
				logger.DebugContext(s.ctx, "Cancelling superseded turn",
					"superseded_response_id", id, "new_response_id", turn.ResponseID)
				t.cancel()
			}
		}
	}

	if _, ok := s.inflight[turn.ResponseID]; ok {
		logger.WarnContext(s.ctx, "Dropping duplicate response id; turn already streaming",
			"response_id", turn.ResponseID)
		return nil
	}

	turnCtx, cancel := context.WithCancel(s.ctx)
	t := &inflightTurn{cancel: cancel}
	s.inflight[turn.ResponseID] = t
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.finishTurn(turn.ResponseID, t)
		s.controller.RespondToTurn(turnCtx, turn, s.emit)
	}()
	return nil
}

// inflightTurn tracks one streaming turn.
type inflightTurn struct {
	cancel context.CancelFunc
}

func (s *Session) finishTurn(responseID int, t *inflightTurn) {
	t.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, responseID)
}

// InFlight returns the number of turns still streaming.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Wait blocks until every started turn has emitted its terminal frame.
func (s *Session) Wait() {
	s.wg.Wait()
}

// OnClose cancels in-flight turns, waits for their terminal frames, then
// stops all writes and releases the provider and the session span. It is
// safe to call more than once.
func (s *Session) OnClose() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	connected := s.connected
	for _, t := range s.inflight {
		t.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.gate.Lock()
	s.closed = true
	s.gate.Unlock()

	var err error
	if s.provider != nil {
		if cerr := s.provider.Close(); cerr != nil {
			err = pkgerrors.New("session", "OnClose", cerr)
		}
	}

	if connected {
		s.cancel()
		s.span.End()
		metrics.RecordSessionEnd()
		logger.InfoContext(s.ctx, "Session closed")
	}
	return err
}

// emit writes a frame unless the session is closed.
func (s *Session) emit(frame types.Frame) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.sink.WriteFrame(frame)
}

func (s *Session) logContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return logger.WithSessionID(context.Background(), s.id)
}
