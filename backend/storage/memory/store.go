package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/adwski/blackboard/backend/room"
)

var (
	ErrRoomExists         = errors.New("room already exists")
	ErrRoomNotFound       = errors.New("room is not found")
	ErrInvalidCredentials = errors.New("invalid room id or password")
)

type entry struct {
	mx   *sync.Mutex
	room *room.Room
	// evicted is set under mx once the entry left the registry.
	// Callers that looked the entry up earlier must not touch the room.
	evicted bool
}

// MemStore is the room registry. Every room carries its own lock:
// callbacks passed to CreateRoom, JoinRoom and Do run while it is held,
// so operations on one room are totally ordered while different rooms
// proceed in parallel.
type MemStore struct {
	mx      *sync.Mutex
	db      map[string]*entry
	roomCfg room.Config
}

func NewMemStore(roomCfg room.Config) *MemStore {
	return &MemStore{
		mx:      &sync.Mutex{},
		db:      make(map[string]*entry),
		roomCfg: roomCfg,
	}
}

// CreateRoom registers a new room and runs fn on it.
// Under concurrent attempts for the same id exactly one succeeds.
func (ms *MemStore) CreateRoom(roomID, password string, fn func(*room.Room)) error {
	ms.mx.Lock()
	if _, ok := ms.db[roomID]; ok {
		ms.mx.Unlock()
		return ErrRoomExists
	}
	e := &entry{
		mx:   &sync.Mutex{},
		room: room.New(roomID, password, ms.roomCfg),
	}
	ms.db[roomID] = e
	e.mx.Lock()
	ms.mx.Unlock()

	defer e.mx.Unlock()
	fn(e.room)
	return nil
}

// JoinRoom checks the password and runs fn on the room.
// A missing room and a wrong password are indistinguishable to the caller.
func (ms *MemStore) JoinRoom(roomID, password string, fn func(*room.Room)) error {
	e, ok := ms.get(roomID)
	if !ok {
		return ErrInvalidCredentials
	}
	return e.join(password, fn)
}

func (e *entry) join(password string, fn func(*room.Room)) error {
	e.mx.Lock()
	defer e.mx.Unlock()

	if e.evicted || !e.room.CheckPassword(password) {
		return ErrInvalidCredentials
	}
	fn(e.room)
	return nil
}

// Do runs fn on an existing room.
func (ms *MemStore) Do(roomID string, fn func(*room.Room)) error {
	e, ok := ms.get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return e.do(fn)
}

func (e *entry) do(fn func(*room.Room)) error {
	e.mx.Lock()
	defer e.mx.Unlock()

	if e.evicted {
		return ErrRoomNotFound
	}
	fn(e.room)
	return nil
}

// Evict removes rooms that have been idle since before deadline and
// that keep returns false for. keep runs under the room lock.
// It returns the removed room ids.
func (ms *MemStore) Evict(deadline time.Time, keep func(roomID string) bool) []string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	var evicted []string
	for id, e := range ms.db {
		e.mx.Lock()
		if e.room.IdleSince().Before(deadline) && !keep(id) {
			e.evicted = true
			delete(ms.db, id)
			evicted = append(evicted, id)
		}
		e.mx.Unlock()
	}
	return evicted
}

func (ms *MemStore) Len() int {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	return len(ms.db)
}

func (ms *MemStore) get(roomID string) (*entry, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	e, ok := ms.db[roomID]
	return e, ok
}
