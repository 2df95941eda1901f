package chat

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// codeRetries bounds how often CreateRoom redraws a taken code before
// giving up. With a 10^6 code space this only trips when the registry is
// effectively full.
const codeRetries = 100

// Registry is the process-wide directory of rooms, mapping both room id and
// room code to the live Room. It has no persistence; entries are removed
// opportunistically when a room is observed empty.
type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	codes map[string]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uuid.UUID]*Room),
		codes: make(map[string]uuid.UUID),
	}
}

// CreateRoom makes a new room under a freshly generated 6-digit code. The
// caller is not joined to it.
func (g *Registry) CreateRoom() (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < codeRetries; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := g.codes[code]; taken {
			continue
		}
		return g.createLocked(code), nil
	}
	return nil, fmt.Errorf("room code space exhausted after %d attempts", codeRetries)
}

// GetOrCreateByCode returns the room registered under code, creating it if
// absent. Concurrent calls with the same code yield the same room.
func (g *Registry) GetOrCreateByCode(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.codes[code]; ok {
		return g.rooms[id]
	}
	return g.createLocked(code)
}

func (g *Registry) createLocked(code string) *Room {
	room := newRoom(uuid.New(), code)
	g.rooms[room.ID] = room
	g.codes[code] = room.ID
	return room
}

// GetByCode returns the room for code, or nil.
func (g *Registry) GetByCode(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.codes[code]
	if !ok {
		return nil
	}
	return g.rooms[id]
}

// GetByID returns the room for id, or nil.
func (g *Registry) GetByID(id uuid.UUID) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[id]
}

// RemoveIfEmpty drops the room's id and code mappings if its membership is
// empty at the time of the call. Racy by design: the code may be reissued
// immediately afterwards, which is acceptable since only creation-time code
// uniqueness is required.
func (g *Registry) RemoveIfEmpty(room *Room) {
	if room == nil || !room.IsEmpty() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, room.ID)
	delete(g.codes, room.Code)
}

func generateCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", binary.BigEndian.Uint32(b[:])%1000000), nil
}
