package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"telecare/auth"
	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	apperrors "telecare/errors"
	"telecare/internal"
	"telecare/observability"
	"telecare/realtime"
	"telecare/services"
)

// Gateway authenticates WebSocket connections and dispatches the inbound
// protocol onto the services. One Gateway serves all connections.
type Gateway struct {
	log      *slog.Logger
	cfg      internal.Config
	tokens   *auth.Tokens
	registry contract.IPresenceRegistry
	rooms    contract.IRoomManager
	chat     services.IChatService
	calls    services.ICallService
	monitor  *observability.MonitoringManager

	upgrader websocket.Upgrader
}

func NewGateway(
	log *slog.Logger,
	cfg internal.Config,
	tokens *auth.Tokens,
	registry contract.IPresenceRegistry,
	rooms contract.IRoomManager,
	chat services.IChatService,
	calls services.ICallService,
	monitor *observability.MonitoringManager,
) *Gateway {
	return &Gateway{
		log:      log,
		cfg:      cfg,
		tokens:   tokens,
		registry: registry,
		rooms:    rooms,
		chat:     chat,
		calls:    calls,
		monitor:  monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// bearerToken pulls the credential from the query string or the
// Authorization header. Browsers cannot set headers on WebSocket dials, so
// the query form is the primary one.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// HandleWS is the /ws endpoint. Authentication happens before the upgrade:
// a bad token is a plain 401, never a half-open socket.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.tokens.Validate(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	g.serve(conn, identity)
}

func (g *Gateway) serve(conn *websocket.Conn, identity domain.Identity) {
	log := g.log.With("user_id", identity.UserID, "role", identity.Role)

	sink := realtime.NewChannelSink(g.cfg.SinkBufferSize, g.cfg.SinkTimeout)
	if evicted := g.registry.Register(identity, sink); evicted != nil {
		// Same user connected again: the old connection's write pump sees
		// its sink close and says goodbye on its own.
		if old, ok := evicted.(*realtime.ChannelSink); ok {
			old.Close()
		}
		log.Info("previous session evicted")
	}

	c := &client{
		conn:         conn,
		sink:         sink,
		log:          log,
		writeTimeout: g.cfg.WriteTimeout,
		pongTimeout:  g.cfg.PongTimeout,
	}
	go c.writePump()

	ctx := context.Background()
	g.rooms.Join(domain.RoleRoomKey(identity.Role), identity.UserID)
	_ = sink.Consume(ctx, event.OnlineUsers{Users: g.registry.Snapshot()})
	g.registry.Fanout(ctx, event.PresenceOnline{User: domain.PresenceEntry{
		UserID:      identity.UserID,
		Role:        identity.Role,
		DisplayName: identity.DisplayName,
		LastSeen:    time.Now().UTC(),
	}}, identity.UserID)

	log.Info("connected", "online", g.registry.Size())

	defer func() {
		sink.Close()
		_ = conn.Close()
		// A stale Unregister (this sink already replaced) must not tear
		// down the newer session's state.
		if g.registry.Unregister(identity.UserID, sink) {
			g.rooms.LeaveAll(identity.UserID)
			g.calls.HandleDisconnect(ctx, identity.UserID)
			g.registry.Fanout(ctx, event.PresenceOffline{
				UserID: identity.UserID,
				At:     time.Now().UTC(),
			}, identity.UserID)
		}
		log.Info("disconnected", "online", g.registry.Size())
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read failed", "error", err)
			}
			return
		}
		g.dispatch(ctx, identity, sink, env)
	}
}

// dispatch routes one inbound envelope. Operation failures go back to the
// sender as error events; they never terminate the connection.
func (g *Gateway) dispatch(ctx context.Context, identity domain.Identity, sink *realtime.ChannelSink, env Envelope) {
	var err error
	switch env.Type {
	case TypeSendMessage:
		err = g.handleSend(ctx, identity, sink, env.Data)
	case TypeMarkRead:
		err = g.handleMarkRead(ctx, identity, env.Data)
	case TypeTyping:
		err = g.handleTyping(ctx, identity, env.Data)
	case TypeJoinRoom:
		err = g.handleJoinRoom(identity, env.Data)
	case TypeListOnline:
		err = sink.Consume(ctx, event.OnlineUsers{Users: g.registry.Snapshot()})
	case TypeCallInitiate:
		err = g.handleCallInitiate(ctx, identity, env.Data)
	case TypeCallAnswer:
		err = g.handleCallAnswer(ctx, identity, env.Data)
	case TypeCallCandidate:
		err = g.handleCallCandidate(ctx, identity, env.Data)
	case TypeCallReject:
		err = g.handleCallReject(ctx, identity, env.Data)
	case TypeCallEnd:
		err = g.handleCallEnd(ctx, identity, env.Data)
	default:
		err = apperrors.ErrInvalidPayload
	}

	if err != nil {
		g.sendError(ctx, sink, err)
	}
}

// sendError reports a failure to the originating connection. Internal
// errors keep their detail in the logs, not on the wire.
func (g *Gateway) sendError(ctx context.Context, sink *realtime.ChannelSink, err error) {
	g.monitor.IncrErrorCount()
	code := apperrors.CodeOf(err)
	message := err.Error()
	if code == "internal" {
		g.log.Error("operation failed", "error", err)
		message = "internal error"
	}
	_ = sink.Consume(ctx, event.Error{Code: code, Message: message})
}

func (g *Gateway) handleSend(ctx context.Context, identity domain.Identity, sink *realtime.ChannelSink, data []byte) error {
	payload, err := decodePayload[sendMessagePayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	kind := domain.KindText
	if payload.Kind != "" {
		parsed, ok := domain.ParseMessageKind(payload.Kind)
		if !ok {
			return apperrors.ErrInvalidPayload
		}
		kind = parsed
	}
	msg, delivered, err := g.chat.Send(ctx, identity, services.SendCommand{
		RecipientID:  payload.RecipientID,
		Content:      payload.Content,
		Kind:         kind,
		Prescription: payload.Prescription,
		Attachments:  payload.Attachments,
	})
	if err != nil {
		return err
	}
	if delivered {
		g.monitor.IncrDelivered()
	} else {
		g.monitor.IncrQueued()
	}
	if err := sink.Consume(ctx, event.MessageSent{Message: msg, Queued: !delivered}); err != nil {
		return err
	}
	if delivered && msg.DeliveredAt != nil {
		return sink.Consume(ctx, event.MessageDelivered{MessageID: msg.ID, DeliveredAt: *msg.DeliveredAt})
	}
	return nil
}

func (g *Gateway) handleMarkRead(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[markReadPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	messageID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	return g.chat.MarkRead(ctx, identity, messageID)
}

func (g *Gateway) handleTyping(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[typingPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	g.chat.Typing(ctx, identity, payload.RecipientID, payload.IsTyping)
	return nil
}

func (g *Gateway) handleJoinRoom(identity domain.Identity, data []byte) error {
	payload, err := decodePayload[joinRoomPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	g.rooms.Join(domain.ChatRoomKey(identity.UserID, payload.PeerID), identity.UserID)
	return nil
}

func (g *Gateway) handleCallInitiate(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[callInitiatePayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	kind, _ := domain.ParseCallKind(payload.Kind)
	if _, err = g.calls.Initiate(ctx, identity, payload.CalleeID, kind, payload.Offer); err != nil {
		return err
	}
	g.monitor.IncrCallsStarted()
	return nil
}

func (g *Gateway) handleCallAnswer(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[callAnswerPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	callID, err := uuid.Parse(payload.CallID)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	return g.calls.Answer(ctx, identity, callID, payload.Answer)
}

func (g *Gateway) handleCallCandidate(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[callCandidatePayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	callID, err := uuid.Parse(payload.CallID)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	return g.calls.Candidate(ctx, identity, callID, payload.Candidate)
}

func (g *Gateway) handleCallReject(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[callRefPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	callID, err := uuid.Parse(payload.CallID)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	return g.calls.Reject(ctx, identity, callID)
}

func (g *Gateway) handleCallEnd(ctx context.Context, identity domain.Identity, data []byte) error {
	payload, err := decodePayload[callRefPayload](data)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	callID, err := uuid.Parse(payload.CallID)
	if err != nil {
		return apperrors.ErrInvalidPayload
	}
	return g.calls.End(ctx, identity, callID)
}
