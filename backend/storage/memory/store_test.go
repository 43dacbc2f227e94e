package memory

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adwski/blackboard/backend/model"
	"github.com/adwski/blackboard/backend/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*room.Room) {}

func TestMemStore_CreateRoom(t *testing.T) {
	ms := NewMemStore(room.Config{})

	err := ms.CreateRoom("R1", "pw", func(r *room.Room) {
		r.AddParticipant("conn-1", "alice")
		r.StartLine(model.StartLine{Color: "red"})
	})
	require.NoError(t, err)

	called := false
	err = ms.CreateRoom("R1", "other", func(*room.Room) { called = true })
	assert.ErrorIs(t, err, ErrRoomExists)
	assert.False(t, called)

	require.NoError(t, ms.Do("R1", func(r *room.Room) {
		assert.True(t, r.CheckPassword("pw"))
		assert.Equal(t, []string{"conn-1", "alice"}, r.Info().Participants)
		assert.Len(t, r.Elements(), 1)
	}))
}

func TestMemStore_CreateRoomConcurrent(t *testing.T) {
	ms := NewMemStore(room.Config{})

	const attempts = 32
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		exists  atomic.Int32
	)
	wg.Add(attempts)
	for range attempts {
		go func() {
			defer wg.Done()
			err := ms.CreateRoom("same", "pw", noop)
			switch err {
			case nil:
				created.Add(1)
			case ErrRoomExists:
				exists.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(attempts-1), exists.Load())
	assert.Equal(t, 1, ms.Len())
}

func TestMemStore_JoinRoom(t *testing.T) {
	ms := NewMemStore(room.Config{})
	require.NoError(t, ms.CreateRoom("R1", "pw", noop))

	assert.ErrorIs(t, ms.JoinRoom("R1", "wrong", noop), ErrInvalidCredentials)
	assert.ErrorIs(t, ms.JoinRoom("nope", "pw", noop), ErrInvalidCredentials)

	err := ms.JoinRoom("R1", "pw", func(r *room.Room) {
		r.AddParticipant("conn-2", "bob")
	})
	require.NoError(t, err)
	require.NoError(t, ms.Do("R1", func(r *room.Room) {
		assert.True(t, r.HasParticipant("bob"))
		assert.True(t, r.HasParticipant("conn-2"))
	}))
}

func TestMemStore_Do(t *testing.T) {
	ms := NewMemStore(room.Config{})
	assert.ErrorIs(t, ms.Do("R1", noop), ErrRoomNotFound)
}

func TestMemStore_DoSerializesRoom(t *testing.T) {
	ms := NewMemStore(room.Config{})
	require.NoError(t, ms.CreateRoom("R1", "pw", noop))

	const posts = 100
	var wg sync.WaitGroup
	wg.Add(posts)
	for range posts {
		go func() {
			defer wg.Done()
			_ = ms.Do("R1", func(r *room.Room) {
				r.PostMessage(model.ChatPost{Username: "u", Message: "m"})
			})
		}()
	}
	wg.Wait()

	require.NoError(t, ms.Do("R1", func(r *room.Room) {
		assert.Len(t, r.Messages(), posts)
	}))
}

func TestMemStore_Evict(t *testing.T) {
	ms := NewMemStore(room.Config{})
	require.NoError(t, ms.CreateRoom("old", "pw", func(r *room.Room) {
		r.Touch(time.Now().Add(-time.Hour))
	}))
	require.NoError(t, ms.CreateRoom("busy", "pw", func(r *room.Room) {
		r.Touch(time.Now().Add(-time.Hour))
	}))
	require.NoError(t, ms.CreateRoom("fresh", "pw", noop))

	evicted := ms.Evict(time.Now().Add(-time.Minute), func(roomID string) bool {
		return roomID == "busy"
	})

	assert.Equal(t, []string{"old"}, evicted)
	assert.Equal(t, 2, ms.Len())
	assert.ErrorIs(t, ms.Do("old", noop), ErrRoomNotFound)
}

func TestMemStore_EvictedEntryIsDead(t *testing.T) {
	ms := NewMemStore(room.Config{})
	require.NoError(t, ms.CreateRoom("R1", "pw", func(r *room.Room) {
		r.Touch(time.Now().Add(-time.Hour))
	}))

	// looked up before eviction, used after it
	e, ok := ms.get("R1")
	require.True(t, ok)
	require.Equal(t, []string{"R1"}, ms.Evict(time.Now(), func(string) bool { return false }))

	called := false
	assert.ErrorIs(t, e.join("pw", func(*room.Room) { called = true }), ErrInvalidCredentials)
	assert.ErrorIs(t, e.do(func(*room.Room) { called = true }), ErrRoomNotFound)
	assert.False(t, called)

	require.NoError(t, ms.CreateRoom("R1", "new", noop))
	assert.ErrorIs(t, ms.JoinRoom("R1", "pw", noop), ErrInvalidCredentials)
}
