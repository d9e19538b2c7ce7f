package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	apperrors "telecare/errors"
)

// terminalRetention is how long a finished session stays queryable before the
// lazy sweep in Initiate discards it.
const terminalRetention = 5 * time.Minute

type ICallService interface {
	Initiate(ctx context.Context, caller domain.Identity, calleeID string, kind domain.CallKind, offer json.RawMessage) (domain.CallSession, error)
	Answer(ctx context.Context, callee domain.Identity, callID uuid.UUID, answer json.RawMessage) error
	Candidate(ctx context.Context, from domain.Identity, callID uuid.UUID, candidate json.RawMessage) error
	Reject(ctx context.Context, callee domain.Identity, callID uuid.UUID) error
	End(ctx context.Context, party domain.Identity, callID uuid.UUID) error
	HandleDisconnect(ctx context.Context, userID string)
}

type callSession struct {
	domain.CallSession
	ringTimer *time.Timer
}

// CallService drives the signaling state machine for audio/video calls.
// Sessions live in memory only: signaling state is meaningless across a
// process restart since both peers' connections are gone anyway.
type CallService struct {
	mu          sync.Mutex
	log         *slog.Logger
	registry    contract.IPresenceRegistry
	ringTimeout time.Duration
	sessions    map[uuid.UUID]*callSession
}

func NewCallService(log *slog.Logger, registry contract.IPresenceRegistry, ringTimeout time.Duration) *CallService {
	return &CallService{
		log:         log,
		registry:    registry,
		ringTimeout: ringTimeout,
		sessions:    make(map[uuid.UUID]*callSession),
	}
}

// Initiate rings the callee. The session only comes into existence once the
// offer actually reached the callee's connection; an offline callee or a
// failed delivery leaves no trace.
func (s *CallService) Initiate(ctx context.Context, caller domain.Identity, calleeID string, kind domain.CallKind, offer json.RawMessage) (domain.CallSession, error) {
	sink, _, online := s.registry.Lookup(calleeID)
	if !online {
		return domain.CallSession{}, apperrors.ErrRecipientOffline
	}

	session := &callSession{
		CallSession: domain.CallSession{
			CallID:    uuid.New(),
			CallerID:  caller.UserID,
			CalleeID:  calleeID,
			Kind:      kind,
			State:     domain.CallRinging,
			StartedAt: time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.sweepLocked()
	s.sessions[session.CallID] = session
	if s.ringTimeout > 0 {
		callID := session.CallID
		session.ringTimer = time.AfterFunc(s.ringTimeout, func() {
			s.timeout(callID)
		})
	}
	s.mu.Unlock()

	err := sink.Consume(ctx, event.CallIncoming{
		CallID: session.CallID,
		Caller: caller,
		Kind:   kind,
		Offer:  offer,
	})
	if err != nil {
		s.mu.Lock()
		if session.ringTimer != nil {
			session.ringTimer.Stop()
		}
		delete(s.sessions, session.CallID)
		s.mu.Unlock()
		return domain.CallSession{}, apperrors.ErrRecipientOffline
	}

	s.log.Info("call ringing",
		"call_id", session.CallID,
		"caller_id", caller.UserID,
		"callee_id", calleeID,
		"kind", kind)
	return session.CallSession, nil
}

// Answer moves a ringing call to connected. Only the callee may answer, and
// only while the call is still ringing.
func (s *CallService) Answer(ctx context.Context, callee domain.Identity, callID uuid.UUID, answer json.RawMessage) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrUnknownCall
	}
	if session.CalleeID != callee.UserID {
		s.mu.Unlock()
		return apperrors.ErrNotCallee
	}
	if !session.State.CanTransition(domain.CallConnected) {
		s.mu.Unlock()
		return apperrors.ErrInvalidCallState
	}
	now := time.Now().UTC()
	session.State = domain.CallConnected
	session.ConnectedAt = &now
	if session.ringTimer != nil {
		session.ringTimer.Stop()
		session.ringTimer = nil
	}
	callerID := session.CallerID
	s.mu.Unlock()

	if sink, _, online := s.registry.Lookup(callerID); online {
		_ = sink.Consume(ctx, event.CallAnswer{CallID: callID, Answer: answer})
	}
	s.log.Info("call connected", "call_id", callID)
	return nil
}

// Candidate forwards an ICE candidate to the other party. Allowed while the
// call is ringing or connected, from either participant.
func (s *CallService) Candidate(ctx context.Context, from domain.Identity, callID uuid.UUID, candidate json.RawMessage) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrUnknownCall
	}
	if !session.Involves(from.UserID) {
		s.mu.Unlock()
		return apperrors.ErrNotParticipant
	}
	if session.State != domain.CallRinging && session.State != domain.CallConnected {
		s.mu.Unlock()
		return apperrors.ErrInvalidCallState
	}
	otherID := session.Other(from.UserID)
	s.mu.Unlock()

	if sink, _, online := s.registry.Lookup(otherID); online {
		_ = sink.Consume(ctx, event.CallCandidate{
			CallID:    callID,
			FromID:    from.UserID,
			Candidate: candidate,
		})
	}
	return nil
}

// Reject declines a ringing call. Only the callee may reject.
func (s *CallService) Reject(ctx context.Context, callee domain.Identity, callID uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrUnknownCall
	}
	if session.CalleeID != callee.UserID {
		s.mu.Unlock()
		return apperrors.ErrNotCallee
	}
	if !session.State.CanTransition(domain.CallRejected) {
		s.mu.Unlock()
		return apperrors.ErrInvalidCallState
	}
	s.finishLocked(session, domain.CallRejected)
	callerID := session.CallerID
	s.mu.Unlock()

	if sink, _, online := s.registry.Lookup(callerID); online {
		_ = sink.Consume(ctx, event.CallRejected{CallID: callID})
	}
	s.log.Info("call rejected", "call_id", callID)
	return nil
}

// End hangs up a ringing or connected call. Either party may end; the other
// party is told who hung up.
func (s *CallService) End(ctx context.Context, party domain.Identity, callID uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrUnknownCall
	}
	if !session.Involves(party.UserID) {
		s.mu.Unlock()
		return apperrors.ErrNotParticipant
	}
	if !session.State.CanTransition(domain.CallEnded) {
		s.mu.Unlock()
		return apperrors.ErrInvalidCallState
	}
	s.finishLocked(session, domain.CallEnded)
	otherID := session.Other(party.UserID)
	s.mu.Unlock()

	if sink, _, online := s.registry.Lookup(otherID); online {
		_ = sink.Consume(ctx, event.CallEnded{CallID: callID, ByID: party.UserID})
	}
	s.log.Info("call ended", "call_id", callID, "by_id", party.UserID)
	return nil
}

// HandleDisconnect fails every non-terminal call involving the user, so the
// remaining party is not left ringing or holding a dead connection.
func (s *CallService) HandleDisconnect(ctx context.Context, userID string) {
	s.mu.Lock()
	var affected []*callSession
	for _, session := range s.sessions {
		if session.Involves(userID) && !session.State.Terminal() {
			s.finishLocked(session, domain.CallFailed)
			affected = append(affected, session)
		}
	}
	s.mu.Unlock()

	for _, session := range affected {
		otherID := session.Other(userID)
		if sink, _, online := s.registry.Lookup(otherID); online {
			_ = sink.Consume(ctx, event.CallFailed{
				CallID: session.CallID,
				Reason: "peer disconnected",
			})
		}
		s.log.Info("call failed on disconnect", "call_id", session.CallID, "user_id", userID)
	}
}

// Get returns a session's current state.
func (s *CallService) Get(callID uuid.UUID) (domain.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[callID]
	if !ok {
		return domain.CallSession{}, false
	}
	return session.CallSession, true
}

// timeout fires when the callee never answered within the ring window.
// Both parties learn about it so their UIs can stop ringing.
func (s *CallService) timeout(callID uuid.UUID) {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok || !session.State.CanTransition(domain.CallTimedOut) {
		s.mu.Unlock()
		return
	}
	s.finishLocked(session, domain.CallTimedOut)
	callerID, calleeID := session.CallerID, session.CalleeID
	s.mu.Unlock()

	ctx := context.Background()
	for _, userID := range []string{callerID, calleeID} {
		if sink, _, online := s.registry.Lookup(userID); online {
			_ = sink.Consume(ctx, event.CallTimeout{CallID: callID})
		}
	}
	s.log.Info("call timed out", "call_id", callID)
}

// finishLocked moves a session into a terminal state. Caller holds s.mu.
func (s *CallService) finishLocked(session *callSession, state domain.CallState) {
	now := time.Now().UTC()
	session.State = state
	session.EndedAt = &now
	if session.ringTimer != nil {
		session.ringTimer.Stop()
		session.ringTimer = nil
	}
}

// sweepLocked drops terminal sessions older than the retention window.
// Caller holds s.mu.
func (s *CallService) sweepLocked() {
	cutoff := time.Now().UTC().Add(-terminalRetention)
	for id, session := range s.sessions {
		if session.State.Terminal() && session.EndedAt != nil && session.EndedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
