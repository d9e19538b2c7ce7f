package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"telecare/domain"
	"telecare/domain/event"
	apperrors "telecare/errors"
	"telecare/mocks"
)

var (
	caller = domain.Identity{UserID: "doc-1", Role: domain.RoleDoctor, DisplayName: "Dr. House"}
	callee = domain.Identity{UserID: "pat-1", Role: domain.RolePatient, DisplayName: "Ana"}
)

// startRingingCall initiates a call with both delivery expectations satisfied
// and returns the ringing session.
func startRingingCall(t *testing.T, svc *CallService, registry *mocks.MockIPresenceRegistry, calleeSink *mocks.MockEventSink) domain.CallSession {
	t.Helper()
	req := require.New(t)

	registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
	calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	session, err := svc.Initiate(context.Background(), caller, callee.UserID, domain.CallVideo, json.RawMessage(`{"sdp":"offer"}`))
	req.NoError(err)
	req.Equal(domain.CallRinging, session.State)
	return session
}

func TestCallService_Initiate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("should ring an online callee with the verbatim offer", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		offer := json.RawMessage(`{"sdp":"v=0..."}`)
		registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
		calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				incoming, ok := e.(event.CallIncoming)
				req.True(ok)
				req.Equal(caller, incoming.Caller)
				req.Equal(domain.CallVideo, incoming.Kind)
				req.JSONEq(string(offer), string(incoming.Offer))
				return nil
			})

		session, err := svc.Initiate(context.Background(), caller, callee.UserID, domain.CallVideo, offer)

		req.NoError(err)
		req.Equal(domain.CallRinging, session.State)
		req.Equal(caller.UserID, session.CallerID)
		req.Equal(callee.UserID, session.CalleeID)

		got, ok := svc.Get(session.CallID)
		req.True(ok)
		req.Equal(domain.CallRinging, got.State)
	})

	t.Run("should fail fast when callee is offline and leave no session", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		registry.EXPECT().Lookup(callee.UserID).Return(nil, domain.Identity{}, false)

		_, err := svc.Initiate(context.Background(), caller, callee.UserID, domain.CallAudio, nil)

		req.ErrorIs(err, apperrors.ErrRecipientOffline)
	})

	t.Run("should drop the session when offer delivery fails", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
		calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

		_, err := svc.Initiate(context.Background(), caller, callee.UserID, domain.CallAudio, nil)

		req.ErrorIs(err, apperrors.ErrRecipientOffline)
	})
}

func TestCallService_Answer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("should connect the call and relay the answer to the caller", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		callerSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		answer := json.RawMessage(`{"sdp":"answer"}`)
		registry.EXPECT().Lookup(caller.UserID).Return(callerSink, caller, true)
		callerSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				relayed, ok := e.(event.CallAnswer)
				req.True(ok)
				req.Equal(session.CallID, relayed.CallID)
				req.JSONEq(string(answer), string(relayed.Answer))
				return nil
			})

		req.NoError(svc.Answer(context.Background(), callee, session.CallID, answer))

		got, _ := svc.Get(session.CallID)
		req.Equal(domain.CallConnected, got.State)
		req.NotNil(got.ConnectedAt)
	})

	t.Run("should refuse an answer from anyone but the callee", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		err := svc.Answer(context.Background(), caller, session.CallID, nil)
		req.ErrorIs(err, apperrors.ErrNotCallee)
	})

	t.Run("should refuse answering a connected call twice", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(caller.UserID).Return(nil, domain.Identity{}, false)
		req.NoError(svc.Answer(context.Background(), callee, session.CallID, nil))

		err := svc.Answer(context.Background(), callee, session.CallID, nil)
		req.ErrorIs(err, apperrors.ErrInvalidCallState)
	})

	t.Run("should refuse an unknown call id", func(t *testing.T) {
		req := require.New(t)
		svc := NewCallService(testLogger(), mocks.NewMockIPresenceRegistry(ctrl), 0)

		err := svc.Answer(context.Background(), callee, uuid.New(), nil)
		req.ErrorIs(err, apperrors.ErrUnknownCall)
	})
}

func TestCallService_Candidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("should forward candidates to the opposite party", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
		calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				candidate, ok := e.(event.CallCandidate)
				req.True(ok)
				req.Equal(caller.UserID, candidate.FromID)
				return nil
			})

		req.NoError(svc.Candidate(context.Background(), caller, session.CallID, json.RawMessage(`{"candidate":"c1"}`)))
	})

	t.Run("should refuse a candidate from an outsider", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		outsider := domain.Identity{UserID: "doc-9", Role: domain.RoleDoctor}
		err := svc.Candidate(context.Background(), outsider, session.CallID, nil)
		req.ErrorIs(err, apperrors.ErrNotParticipant)
	})

	t.Run("should refuse candidates on an ended call", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(callee.UserID).Return(nil, domain.Identity{}, false)
		req.NoError(svc.End(context.Background(), caller, session.CallID))

		err := svc.Candidate(context.Background(), caller, session.CallID, nil)
		req.ErrorIs(err, apperrors.ErrInvalidCallState)
	})
}

func TestCallService_Reject_And_End(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("should let the callee reject a ringing call", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		callerSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(caller.UserID).Return(callerSink, caller, true)
		callerSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				req.Equal("call-reject", e.Name())
				return nil
			})

		req.NoError(svc.Reject(context.Background(), callee, session.CallID))

		got, _ := svc.Get(session.CallID)
		req.Equal(domain.CallRejected, got.State)
		req.NotNil(got.EndedAt)
	})

	t.Run("should not let the caller reject its own call", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		err := svc.Reject(context.Background(), caller, session.CallID)
		req.ErrorIs(err, apperrors.ErrNotCallee)
	})

	t.Run("should let either party end and tell the other who hung up", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		callerSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(caller.UserID).Return(callerSink, caller, true)
		callerSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)
		req.NoError(svc.Answer(context.Background(), callee, session.CallID, nil))

		registry.EXPECT().Lookup(caller.UserID).Return(callerSink, caller, true)
		callerSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				ended, ok := e.(event.CallEnded)
				req.True(ok)
				req.Equal(callee.UserID, ended.ByID)
				return nil
			})

		req.NoError(svc.End(context.Background(), callee, session.CallID))

		got, _ := svc.Get(session.CallID)
		req.Equal(domain.CallEnded, got.State)
	})

	t.Run("should refuse ending a rejected call", func(t *testing.T) {
		req := require.New(t)
		registry := mocks.NewMockIPresenceRegistry(ctrl)
		calleeSink := mocks.NewMockEventSink(ctrl)
		svc := NewCallService(testLogger(), registry, 0)

		session := startRingingCall(t, svc, registry, calleeSink)

		registry.EXPECT().Lookup(caller.UserID).Return(nil, domain.Identity{}, false)
		req.NoError(svc.Reject(context.Background(), callee, session.CallID))

		err := svc.End(context.Background(), caller, session.CallID)
		req.ErrorIs(err, apperrors.ErrInvalidCallState)
	})
}

func TestCallService_Ring_Timeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIPresenceRegistry(ctrl)
	calleeSink := mocks.NewMockEventSink(ctrl)
	callerSink := mocks.NewMockEventSink(ctrl)
	svc := NewCallService(testLogger(), registry, 30*time.Millisecond)

	timedOut := make(chan struct{}, 2)

	registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
	calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	// Both parties are told when the ring window expires.
	registry.EXPECT().Lookup(caller.UserID).Return(callerSink, caller, true)
	registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
	for _, sink := range []*mocks.MockEventSink{callerSink, calleeSink} {
		sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e event.Event) error {
				req.Equal("call-timeout", e.Name())
				timedOut <- struct{}{}
				return nil
			})
	}

	session, err := svc.Initiate(context.Background(), caller, callee.UserID, domain.CallAudio, nil)
	req.NoError(err)

	for range 2 {
		select {
		case <-timedOut:
		case <-time.After(time.Second):
			t.Fatal("ring timeout never fired")
		}
	}

	got, _ := svc.Get(session.CallID)
	req.Equal(domain.CallTimedOut, got.State)

	err = svc.Answer(context.Background(), callee, session.CallID, nil)
	req.ErrorIs(err, apperrors.ErrInvalidCallState)
}

func TestCallService_HandleDisconnect_Fails_Active_Calls(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIPresenceRegistry(ctrl)
	calleeSink := mocks.NewMockEventSink(ctrl)
	svc := NewCallService(testLogger(), registry, 0)

	session := startRingingCall(t, svc, registry, calleeSink)

	registry.EXPECT().Lookup(callee.UserID).Return(calleeSink, callee, true)
	calleeSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e event.Event) error {
			failed, ok := e.(event.CallFailed)
			req.True(ok)
			req.Equal(session.CallID, failed.CallID)
			req.Equal("peer disconnected", failed.Reason)
			return nil
		})

	svc.HandleDisconnect(context.Background(), caller.UserID)

	got, _ := svc.Get(session.CallID)
	req.Equal(domain.CallFailed, got.State)
}
