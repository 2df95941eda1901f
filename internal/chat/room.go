package chat

import (
	"sync"

	"github.com/google/uuid"

	"secure-chat/internal/protocol"
	"secure-chat/pkg/logger"
)

// Room is an in-memory chat channel: a unique id, a 6-digit human-entry code
// and a concurrently mutated set of member sessions. Rooms hold no ownership
// over sessions.
type Room struct {
	ID   uuid.UUID
	Code string

	mu      sync.RWMutex
	members map[*Session]struct{}
}

func newRoom(id uuid.UUID, code string) *Room {
	return &Room{
		ID:      id,
		Code:    code,
		members: make(map[*Session]struct{}),
	}
}

func (r *Room) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[s] = struct{}{}
}

func (r *Room) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, s)
}

func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

// Broadcast serializes the packet once and writes it to every member.
// Delivery is best-effort: a write failure for one member is logged and must
// not stop delivery to the others. A dead peer is discovered later via its
// own read failure, not here.
func (r *Room) Broadcast(p *protocol.Packet) {
	data := p.Encode()

	r.mu.RLock()
	members := make([]*Session, 0, len(r.members))
	for s := range r.members {
		members = append(members, s)
	}
	r.mu.RUnlock()

	for _, s := range members {
		if err := s.write(data); err != nil {
			logger.Debug("broadcast to %s failed in room %s: %v", s.RemoteAddr(), r.Code, err)
		}
	}
}
