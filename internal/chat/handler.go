package chat

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"secure-chat/internal/logstore"
	"secure-chat/internal/protocol"
	"secure-chat/pkg/logger"
)

// Handler runs the per-connection control loop: it reads one packet at a
// time from the authenticated stream, dispatches by opcode and writes the
// response before reading the next packet. The protocol is not pipelined.
type Handler struct {
	session  *Session
	registry *Registry
	bus      *Bus
	store    logstore.Store

	cleanupOnce sync.Once
}

func NewHandler(conn net.Conn, registry *Registry, bus *Bus, store logstore.Store) *Handler {
	return &Handler{
		session:  NewSession(conn),
		registry: registry,
		bus:      bus,
		store:    store,
	}
}

// Run processes packets until the stream ends, a framing error occurs or the
// client leaves. Cleanup runs exactly once on every exit path.
func (h *Handler) Run() {
	defer h.cleanup()

	for {
		pkt, err := protocol.Read(h.session.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Framing errors are fatal: the stream is no longer
				// trustworthy, so no error packet can be sent.
				logger.Debug("dropping connection %s: %v", h.session.RemoteAddr(), err)
			}
			return
		}

		h.session.Touch()
		if done := h.dispatch(pkt); done {
			return
		}
	}
}

// dispatch handles one decoded packet and reports whether the handler should
// terminate. Unknown opcodes are answered with an error packet; the
// connection continues.
func (h *Handler) dispatch(pkt *protocol.Packet) bool {
	switch pkt.Opcode {
	case protocol.OpHeartbeat:
		h.send(protocol.HeartbeatAck(uint64(time.Now().UnixMilli())))

	case protocol.OpCreateRoom:
		h.handleCreateRoom()

	case protocol.OpJoinRoom:
		h.handleJoinRoom(pkt)

	case protocol.OpChatSend:
		h.handleChatSend(pkt)

	case protocol.OpLeave:
		h.detach()
		h.send(protocol.Leave()) // echoed, not OpLeaveAck
		return true

	case protocol.OpSetUsername:
		h.handleSetUsername(pkt)

	case protocol.OpGetLogs:
		h.handleGetLogs()

	default:
		h.send(protocol.Error(protocol.CodeBadRequest, "unknown opcode"))
	}
	return false
}

func (h *Handler) handleCreateRoom() {
	room, err := h.registry.CreateRoom()
	if err != nil {
		logger.Error("create room failed: %v", err)
		h.send(protocol.Error(protocol.CodeBadRequest, "cannot create room"))
		return
	}
	logger.Info("room %s created (code %s)", room.ID, room.Code)
	h.send(protocol.CreateRoomAck(room.ID, room.Code))
}

func (h *Handler) handleJoinRoom(pkt *protocol.Packet) {
	code, ok := pkt.Str(protocol.FieldRoomCode)
	if !ok {
		h.send(protocol.Error(protocol.CodeBadRequest, "missing room code"))
		return
	}

	room := h.registry.GetByCode(code)
	if room == nil {
		h.send(protocol.Error(protocol.CodeNotFound, "room not found"))
		return
	}

	if username, ok := pkt.Str(protocol.FieldUsername); ok {
		h.session.SetUsername(username)
	}

	// Broadcast before the joiner is added so it does not see its own
	// join notice, then move the session over.
	h.bus.UserJoined(room, h.session.Username())
	h.detach()
	room.Add(h.session)
	h.session.setRoom(room)

	logger.Info("%s joined room %s", h.session.Username(), room.Code)
	h.send(protocol.JoinRoomAck(room.ID, room.Code))
}

func (h *Handler) handleChatSend(pkt *protocol.Packet) {
	room := h.session.Room()
	if room == nil {
		h.send(protocol.Error(protocol.CodeBadRequest, "not in room"))
		return
	}
	if !protocol.ValidateContentLen(pkt) {
		h.send(protocol.Error(protocol.CodeBadRequest, "bad content length"))
		return
	}

	message, _ := pkt.Str(protocol.FieldMessage)
	h.store.SaveMessage(room.ID, message)
	h.bus.Chat(room, h.session.Username(), message)
}

func (h *Handler) handleSetUsername(pkt *protocol.Packet) {
	username, ok := pkt.Str(protocol.FieldUsername)
	if !ok {
		h.send(protocol.Error(protocol.CodeBadRequest, "missing username"))
		return
	}
	h.session.SetUsername(username)
	h.send(protocol.SetUsernameAck(username))
}

func (h *Handler) handleGetLogs() {
	room := h.session.Room()
	if room == nil {
		h.send(protocol.Error(protocol.CodeBadRequest, "not in room"))
		return
	}

	text, err := h.store.Logs(room.ID)
	if err != nil {
		logger.Debug("log retrieval for room %s failed: %v", room.ID, err)
		h.send(protocol.Error(protocol.CodeNotFound, "no logs for room"))
		return
	}
	h.send(protocol.GetLogsAck(text))
}

// detach removes the session from its current room, notifies the remaining
// members and garbage-collects the room if it is now empty.
func (h *Handler) detach() {
	room := h.session.Room()
	if room == nil {
		return
	}
	room.Remove(h.session)
	h.session.setRoom(nil)
	h.bus.UserLeft(room, h.session.Username())
	h.registry.RemoveIfEmpty(room)
}

// cleanup is idempotent and never propagates errors: the connection is
// already being discarded.
func (h *Handler) cleanup() {
	h.cleanupOnce.Do(func() {
		h.detach()
		if err := h.session.Close(); err != nil {
			logger.Debug("closing %s: %v", h.session.RemoteAddr(), err)
		}
	})
}

// send writes a response packet. Write failures are logged, not propagated;
// a connection that cannot be written to will fail its next read and be
// routed into cleanup there.
func (h *Handler) send(p *protocol.Packet) {
	if err := h.session.Send(p); err != nil {
		logger.Debug("response write to %s failed: %v", h.session.RemoteAddr(), err)
	}
}
