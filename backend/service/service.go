package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/blackboard/backend/model"
	"github.com/adwski/blackboard/backend/room"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	minJanitorInterval = time.Second
)

var (
	ErrSessionExists = errors.New("session already exists")
	ErrNoSession     = errors.New("session does not exist")
	ErrNotAdmitted   = errors.New("room is not found or access is denied")
	ErrNotDrained    = errors.New("session did not stop in time")

	ErrStaleAdmission = errors.New("room was re-created since admission")
	ErrGet           = errors.New("unable to get room")
)

type (
	RoomStore interface {
		CreateRoom(roomID, password string, fn func(*room.Room)) error
		JoinRoom(roomID, password string, fn func(*room.Room)) error
		Do(roomID string, fn func(*room.Room)) error
		Evict(deadline time.Time, keep func(roomID string) bool) []string
	}

	Switch interface {
		Connect(roomID, connID string, wire model.Wire)
		Leave(roomID, connID string)
		Disconnect(connID string) []string
		Members(roomID string) int
		Broadcast(ann model.Announcement, roomID string, includeSrc bool) int
	}

	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger

		mx       *sync.Mutex
		sessions map[string]*session

		roomTTL time.Duration
		now     func() time.Time
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
		// RoomTTL enables eviction of rooms without live members. Zero disables it.
		RoomTTL time.Duration
	}
)

// session is owned by the goroutine that serves its wire.
// admitted maps room ids to the room instances the session got into.
type session struct {
	id       string
	wire     model.Wire
	admitted map[string]*room.Room
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		sw:       cfg.Switch,
		logger:   cfg.Logger.With().Str("component", "service").Logger(),
		mx:       &sync.Mutex{},
		sessions: make(map[string]*session),
		roomTTL:  cfg.RoomTTL,
		now:      time.Now,
	}
}

// CreateSession starts processing events arriving on wire.RX
// until ctx is done or the session is deleted.
func (svc *Service) CreateSession(ctx context.Context, connID string, wire model.Wire) error {
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:       connID,
		wire:     wire,
		admitted: make(map[string]*room.Room),
		logger:   svc.logger.With().Str("connID", connID).Logger(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	svc.mx.Lock()
	if _, ok := svc.sessions[connID]; ok {
		svc.mx.Unlock()
		cancel()
		return ErrSessionExists
	}
	svc.sessions[connID] = sess
	svc.mx.Unlock()

	go svc.serve(sessCtx, sess)
	sess.logger.Debug().Msg("session created")
	return nil
}

// DeleteSession stops the session and waits until it has left all rooms.
// Room participants are kept.
func (svc *Service) DeleteSession(ctx context.Context, connID string) error {
	svc.mx.Lock()
	sess, ok := svc.sessions[connID]
	delete(svc.sessions, connID)
	svc.mx.Unlock()
	if !ok {
		return ErrNoSession
	}

	sess.cancel()
	select {
	case <-sess.done:
	case <-ctx.Done():
		return errors.Join(ErrNotDrained, ctx.Err())
	}
	sess.logger.Debug().Msg("session deleted")
	return nil
}

// leave unsubscribes the session from live fan-out. It runs after the
// last event of the session was handled, so nothing can subscribe it again.
func (svc *Service) leave(sess *session) {
	now := svc.now()
	for _, roomID := range svc.sw.Disconnect(sess.id) {
		err := svc.store.Do(roomID, func(r *room.Room) { r.Touch(now) })
		if err != nil {
			sess.logger.Debug().Err(err).Str("roomID", roomID).Msg("left room is gone")
		}
	}
}

func (svc *Service) RoomStats(roomID string) (model.RoomStats, error) {
	var stats model.RoomStats
	err := svc.store.Do(roomID, func(r *room.Room) {
		stats = r.Stats()
		stats.LiveMembers = svc.sw.Members(roomID)
	})
	if err != nil {
		return stats, errors.Join(ErrGet, err)
	}
	return stats, nil
}

// RunJanitor evicts idle rooms until ctx is done. It returns at once
// if eviction is disabled.
func (svc *Service) RunJanitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if svc.roomTTL <= 0 {
		return
	}

	interval := max(svc.roomTTL/2, minJanitorInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	svc.logger.Info().Dur("ttl", svc.roomTTL).Msg("room janitor started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.evictIdle()
		}
	}
}

func (svc *Service) evictIdle() {
	deadline := svc.now().Add(-svc.roomTTL)
	evicted := svc.store.Evict(deadline, func(roomID string) bool {
		return svc.sw.Members(roomID) > 0
	})
	if len(evicted) > 0 {
		svc.logger.Info().Strs("rooms", evicted).Msg("idle rooms evicted")
	}
}

func (svc *Service) serve(ctx context.Context, sess *session) {
	defer func() {
		svc.leave(sess)
		close(sess.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sess.wire.RX:
			svc.handle(sess, ev)
		}
	}
}

func (svc *Service) handle(sess *session, ev model.Event) {
	msg, err := model.Decode(ev)
	if err != nil {
		sess.logger.Warn().Err(err).Str("type", ev.Type).Msg("event dropped")
		return
	}
	if sess.logger.GetLevel() <= zerolog.TraceLevel {
		sess.logger.Trace().Str("type", ev.Type).Msg(spew.Sdump(msg))
	}

	switch m := msg.(type) {
	case model.CreateRoom:
		svc.createRoom(sess, ev.Ref, m)
	case model.JoinRoom:
		svc.joinRoom(sess, ev.Ref, m)
	case model.EnterRoom:
		svc.enterRoom(sess, ev.Ref, m)
	case model.ChatEnter:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			svc.sw.Connect(m.RoomID, sess.id, sess.wire)
			svc.dispatch(sess, m.RoomID, r.ReplayChat())
		})
	case model.StartLine:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			stroke, ds := r.StartLine(m)
			sess.logger.Debug().
				Str("roomID", m.RoomID).
				Str("lineID", stroke.LineID).
				Msg("line started")
			svc.dispatch(sess, m.RoomID, ds)
		})
	case model.DrawUpdate:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			ds := r.Draw(m)
			if ds == nil {
				sess.logger.Debug().
					Str("roomID", m.RoomID).
					Str("lineID", m.LineID).
					Str("shapeID", m.ID).
					Msg("draw update could not be applied")
			}
			svc.dispatch(sess, m.RoomID, ds)
		})
	case model.Undo:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			svc.dispatch(sess, m.RoomID, r.Undo())
		})
	case model.Redo:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			svc.dispatch(sess, m.RoomID, r.Redo())
		})
	case model.ChatPost:
		svc.inRoom(sess, m.RoomID, func(r *room.Room) {
			svc.dispatch(sess, m.RoomID, r.PostMessage(m))
		})
	}
}

func (svc *Service) createRoom(sess *session, ref string, req model.CreateRoom) {
	err := svc.store.CreateRoom(req.RoomID, req.Password, func(r *room.Room) {
		r.AddParticipant(sess.id, req.Username)
		svc.admit(sess, r)
		svc.reply(sess, model.Announcement{Type: model.AnnouncementTypeRoomCreated, Payload: req.RoomID})
		svc.ack(sess, ref, req.RoomID, nil)
	})
	if err != nil {
		sess.logger.Debug().Err(err).Str("roomID", req.RoomID).Msg("room was not created")
		svc.ack(sess, ref, nil, err)
		return
	}
	sess.logger.Info().Str("roomID", req.RoomID).Msg("room created")
}

func (svc *Service) joinRoom(sess *session, ref string, req model.JoinRoom) {
	err := svc.store.JoinRoom(req.RoomID, req.Password, func(r *room.Room) {
		r.AddParticipant(sess.id, req.Username)
		r.Touch(svc.now())
		svc.admit(sess, r)
		svc.reply(sess, model.Announcement{Type: model.AnnouncementTypeRoomJoined, Payload: req.RoomID})
		svc.ack(sess, ref, r.Info(), nil)
		svc.dispatch(sess, req.RoomID, r.Replay())
	})
	if err != nil {
		sess.logger.Debug().Err(err).Str("roomID", req.RoomID).Msg("room was not joined")
		svc.ack(sess, ref, nil, err)
		return
	}
	sess.logger.Debug().Str("roomID", req.RoomID).Msg("user joined room")
}

func (svc *Service) enterRoom(sess *session, ref string, req model.EnterRoom) {
	ok := svc.inRoom(sess, req.RoomID, func(r *room.Room) {
		svc.sw.Connect(req.RoomID, sess.id, sess.wire)
		members := svc.sw.Members(req.RoomID)
		svc.reply(sess, model.Announcement{
			Type:    model.AnnouncementTypeHandshake,
			Payload: req.RoomID + " joined",
		})
		svc.ack(sess, ref, enterReply{RoomID: req.RoomID, Members: members}, nil)
		svc.dispatch(sess, req.RoomID, r.Replay())
	})
	if !ok {
		svc.ack(sess, ref, nil, ErrNotAdmitted)
	}
}

type enterReply struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

// admit lets the session use the room and subscribes it to the room's fan-out.
// Must be called under the room lock.
func (svc *Service) admit(sess *session, r *room.Room) {
	sess.admitted[r.ID()] = r
	svc.sw.Connect(r.ID(), sess.id, sess.wire)
}

// inRoom runs fn under the room lock if the session was admitted to
// this very room. A room re-created under the same id needs a new admission.
func (svc *Service) inRoom(sess *session, roomID string, fn func(*room.Room)) bool {
	admitted, ok := sess.admitted[roomID]
	if !ok {
		sess.logger.Debug().Str("roomID", roomID).Msg("event for a room the session is not admitted to")
		return false
	}
	var same bool
	now := svc.now()
	err := svc.store.Do(roomID, func(r *room.Room) {
		if same = r == admitted; !same {
			return
		}
		r.Touch(now)
		fn(r)
	})
	if err == nil && !same {
		err = ErrStaleAdmission
	}
	if err != nil {
		delete(sess.admitted, roomID)
		svc.sw.Leave(roomID, sess.id)
		sess.logger.Debug().Err(err).Str("roomID", roomID).Msg("room is gone")
		return false
	}
	return true
}

// dispatch fans out deliveries. It must run under the room lock
// so that per-room ordering is preserved on every connection.
func (svc *Service) dispatch(sess *session, roomID string, ds []model.Delivery) {
	for _, d := range ds {
		ann := d.Announcement
		ann.SRC = sess.id
		switch d.Fanout {
		case model.FanoutReply:
			svc.reply(sess, ann)
		case model.FanoutOthers:
			svc.sw.Broadcast(ann, roomID, false)
		case model.FanoutAll:
			svc.sw.Broadcast(ann, roomID, true)
		}
	}
}

func (svc *Service) ack(sess *session, ref string, data any, err error) {
	rep := model.Reply{Data: data}
	if err != nil {
		rep = model.Reply{Error: err.Error()}
	}
	svc.reply(sess, model.Announcement{Type: model.AnnouncementTypeAck, Ref: ref, Payload: rep})
}

func (svc *Service) reply(sess *session, ann model.Announcement) {
	if ann.SRC == "" {
		ann.SRC = sess.id
	}
	select {
	case sess.wire.TX <- ann:
	default:
		sess.logger.Error().Str("type", ann.Type).Msg("reply dropped, outbound buffer is full")
	}
}
