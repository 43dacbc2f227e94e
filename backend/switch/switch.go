package _switch

import (
	"sync"

	"github.com/adwski/blackboard/backend/model"
	"github.com/rs/zerolog"
)

// Switch forwards announcements to the live connections of a room.
// Sends never block: a connection whose outbound buffer is full
// is considered dead and misses the announcement.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

// Connect subscribes an endpoint to a room. Connecting twice is a no-op.
func (sw *Switch) Connect(room, endpoint string, wire model.Wire) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	inst, ok := sw.fwd[room]
	if !ok {
		inst = make(map[string]model.Wire)
		sw.fwd[room] = inst
	}
	if _, ok = inst[endpoint]; ok {
		return
	}
	inst[endpoint] = wire
	sw.logger.Debug().
		Str("room", room).
		Str("endpoint", endpoint).
		Msg("endpoint connected")
}

// Leave unsubscribes the endpoint from a single room.
func (sw *Switch) Leave(room, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	inst, ok := sw.fwd[room]
	if !ok {
		return
	}
	delete(inst, endpoint)
	if len(inst) == 0 {
		delete(sw.fwd, room)
	}
}

// Disconnect removes the endpoint from every room and
// returns the rooms it was subscribed to.
func (sw *Switch) Disconnect(endpoint string) []string {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	var rooms []string
	for room, inst := range sw.fwd {
		if _, ok := inst[endpoint]; !ok {
			continue
		}
		delete(inst, endpoint)
		if len(inst) == 0 {
			delete(sw.fwd, room)
		}
		rooms = append(rooms, room)
	}
	sw.logger.Debug().
		Str("endpoint", endpoint).
		Strs("rooms", rooms).
		Msg("endpoint disconnected")
	return rooms
}

// Members returns the number of live endpoints in the room.
func (sw *Switch) Members(room string) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return len(sw.fwd[room])
}

// Broadcast sends ann to every endpoint of the room, skipping ann.SRC
// unless includeSrc is set. It returns how many endpoints got it.
func (sw *Switch) Broadcast(ann model.Announcement, room string, includeSrc bool) int {
	logger := sw.logger.With().
		Str("room", room).
		Str("type", ann.Type).
		Str("src", ann.SRC).Logger()

	sw.mx.RLock()
	defer sw.mx.RUnlock()

	var sent int
	for dst, wire := range sw.fwd[room] {
		if dst == ann.SRC && !includeSrc {
			continue
		}
		if send(ann, wire.TX, dst, &logger) {
			sent++
		}
	}
	if sent == 0 {
		logger.Debug().Msg("broadcast did not reach anyone")
	}
	return sent
}

func send(ann model.Announcement, tx chan<- model.Announcement, dst string, logger *zerolog.Logger) bool {
	select {
	case tx <- ann:
		logger.Trace().Str("dst", dst).Msg("announce is forwarded")
		return true
	default:
		logger.Error().Str("dst", dst).Msg("dead endpoint, announce dropped")
		return false
	}
}
