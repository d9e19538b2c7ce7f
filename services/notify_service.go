package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	apperrors "telecare/errors"
)

type INotifyService interface {
	Notify(ctx context.Context, target string, payload json.RawMessage) error
}

// NotifyService pushes out-of-band updates (appointment changes, admin
// notices) produced by other backend components into live connections.
// Delivery is best effort: offline targets are skipped, never queued.
type NotifyService struct {
	log      *slog.Logger
	registry contract.IPresenceRegistry
	rooms    contract.IRoomManager
}

func NewNotifyService(log *slog.Logger, registry contract.IPresenceRegistry, rooms contract.IRoomManager) *NotifyService {
	return &NotifyService{log: log, registry: registry, rooms: rooms}
}

// Notify addresses either one user by ID or a whole role group via the
// "role:doctor" / "role:patient" target form.
func (s *NotifyService) Notify(ctx context.Context, target string, payload json.RawMessage) error {
	if roleName, ok := strings.CutPrefix(target, "role:"); ok {
		role, err := domain.ParseRole(roleName)
		if err != nil {
			return apperrors.ErrInvalidPayload
		}
		s.rooms.Broadcast(ctx, domain.RoleRoomKey(role), event.AppointmentUpdate{Payload: payload}, "")
		s.log.Info("notification broadcast", "target", target)
		return nil
	}

	sink, _, online := s.registry.Lookup(target)
	if !online {
		s.log.Debug("notification target offline", "target", target)
		return nil
	}
	if err := sink.Consume(ctx, event.AppointmentUpdate{Payload: payload}); err != nil {
		s.log.Warn("notification delivery failed", "target", target, "error", err)
	}
	return nil
}
