package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/blackboard/backend/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultSessionCloseTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64 << 10
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var errBadFrame = errors.New("bad frame")

type (
	SessionService interface {
		CreateSession(ctx context.Context, connID string, wire model.Wire) error
		DeleteSession(ctx context.Context, connID string) error
	}

	Config struct {
		Logger         *zerolog.Logger
		SessionService SessionService
		// CheckOrigin decides which browser origins may open a connection.
		CheckOrigin func(r *http.Request) bool
		// RateLimit is the sustained number of inbound events per second
		// accepted from one connection. Zero or less disables limiting.
		RateLimit float64
		RateBurst int
	}

	// Server is the transport gateway: it upgrades requests to websocket
	// connections and pumps events between them and the session service.
	Server struct {
		svc SessionService
		ws  *websocket.Upgrader

		rateLimit rate.Limit
		rateBurst int

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.SessionService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      cfg.CheckOrigin,
		},
		rateLimit: rate.Inf,
		rateBurst: max(cfg.RateBurst, 1),
	}
	if cfg.RateLimit > 0 {
		srv.rateLimit = rate.Limit(cfg.RateLimit)
	}
	return srv
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an error status.
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	var (
		connID = uuid.NewString()
		wire   = model.NewWire()
		logger = srv.logger.With().Str("connID", connID).Logger()
	)

	ctx, cancel := context.WithCancel(context.Background()) // long-living wire context

	if err = srv.svc.CreateSession(ctx, connID, wire); err != nil {
		logger.Error().Err(err).Msg("failed to create session")
		cancel()
		webSocketCloser(conn, &logger)
		return
	}
	logger.Debug().
		Str("remote", r.RemoteAddr).
		Msg("session created")

	go srv.handleWSConn(ctx, cancel, conn, connID, wire, &logger)
}

func (srv *Server) destroySession(connID string, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSessionCloseTimeout)
	defer cancel()
	if err := srv.svc.DeleteSession(ctx, connID); err != nil {
		logger.Error().Err(err).Msg("failed to delete session")
		return
	}
	logger.Debug().Msg("session ended")
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	connID string,
	wire model.Wire,
	logger *zerolog.Logger,
) {
	wg := &sync.WaitGroup{}
	limiter := rate.NewLimiter(srv.rateLimit, srv.rateBurst)

	wg.Add(2)
	go func() {
		webSocketReceiver(ctx, wg, conn, connID, wire.RX, limiter, logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, logger)
	srv.destroySession(connID, logger)
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Announcement,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case msg, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&msg)
			if wsErr != nil {
				// one bad announcement must not kill the connection
				logger.Error().Err(wsErr).Str("type", msg.Type).Msg("failed to marshall outgoing message")
				continue
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.TextMessage, b)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
		}
	}
}

func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	connID string,
	rx chan<- model.Event,
	limiter *rate.Limiter,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			ev, wsErr := readEvent(conn)
			switch {
			case errors.Is(wsErr, errBadFrame):
				logger.Warn().Err(wsErr).Msg("malformed frame dropped")
				continue
			case websocket.IsCloseError(wsErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Debug().Err(wsErr).Msg("connection closed")
				break RecvLoop
			case wsErr != nil:
				logger.Error().Err(wsErr).Msg("unexpected error during receive")
				break RecvLoop
			}

			if !limiter.Allow() {
				logger.Warn().Str("type", ev.Type).Msg("inbound rate exceeded, event dropped")
				continue
			}
			ev.SRC = connID
			select {
			case rx <- ev:
			case <-ctx.Done():
				break RecvLoop
			}
		}
	}
}

// readEvent reads one frame. A frame that is not an event yields
// errBadFrame and leaves the connection usable.
func readEvent(conn *websocket.Conn) (model.Event, error) {
	var ev model.Event
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if typ != websocket.TextMessage {
		return ev, errors.Join(errBadFrame, errors.New("binary frame"))
	}
	if err = json.Unmarshal(msg, &ev); err != nil {
		return ev, errors.Join(errBadFrame, err)
	}
	if ev.Type == "" {
		return ev, errors.Join(errBadFrame, errors.New("event type is missing"))
	}
	return ev, nil
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Debug().Err(wsErr).Msg("failed to send close message")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
