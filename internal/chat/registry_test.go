package chat

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateByCodeConcurrent(t *testing.T) {
	registry := NewRegistry()

	const n = 32
	rooms := make([]*Room, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = registry.GetOrCreateByCode("123456")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, rooms[0], rooms[i], "caller %d got a different room", i)
	}
	assert.Len(t, registry.rooms, 1)
	assert.Len(t, registry.codes, 1)
	assert.Same(t, rooms[0], registry.GetByCode("123456"))
	assert.Same(t, rooms[0], registry.GetByID(rooms[0].ID))
}

func TestCreateRoomGeneratesDistinctCodes(t *testing.T) {
	registry := NewRegistry()

	codes := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room, err := registry.CreateRoom()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, room.Code)
		assert.False(t, codes[room.Code], "code %s reissued", room.Code)
		codes[room.Code] = true
	}
	assert.Len(t, registry.rooms, 50)
}

func TestCreateRoomDoesNotJoin(t *testing.T) {
	registry := NewRegistry()

	room, err := registry.CreateRoom()
	require.NoError(t, err)
	assert.True(t, room.IsEmpty())
}

func TestLookupsReturnNilWhenAbsent(t *testing.T) {
	registry := NewRegistry()

	assert.Nil(t, registry.GetByCode("999999"))
	assert.Nil(t, registry.GetByID(uuid.New()))
}

func TestRemoveIfEmpty(t *testing.T) {
	registry := NewRegistry()
	room := registry.GetOrCreateByCode("654321")

	session := NewSession(pipeConn(t))
	room.Add(session)

	// Not empty: removal is a no-op.
	registry.RemoveIfEmpty(room)
	assert.Same(t, room, registry.GetByCode("654321"))

	room.Remove(session)
	registry.RemoveIfEmpty(room)
	assert.Nil(t, registry.GetByCode("654321"))
	assert.Nil(t, registry.GetByID(room.ID))

	// Nil room is safe.
	registry.RemoveIfEmpty(nil)
}
