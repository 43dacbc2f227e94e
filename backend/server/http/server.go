package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/blackboard/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline  = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second

	deployedMessage = "Server Deployed"
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	RoomStats(roomID string) (model.RoomStats, error)
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	// Websocket serves the realtime endpoint at /ws.
	Websocket http.Handler
	// CORS wraps every route. Optional.
	CORS       func(http.Handler) http.Handler
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /{$}", srv.health)
	r.HandleFunc("GET /api/room/{roomID}", srv.roomStats)
	if cfg.Websocket != nil {
		r.Handle("GET /ws", cfg.Websocket)
	}

	var h http.Handler = r
	if cfg.CORS != nil {
		h = cfg.CORS(h)
	}

	srv.Server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return srv
}

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &GenericResponse{Message: deployedMessage}, &srv.logger)
}

func (srv *Server) roomStats(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	srv.logger.Trace().Str("roomID", roomID).Msg("got room stats request")

	stats, err := srv.svc.RoomStats(roomID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, &GenericResponse{Error: err.Error()}, &srv.logger)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: stats}, &srv.logger)
}

func writeJSON(w http.ResponseWriter, code int, resp *GenericResponse, logger *zerolog.Logger) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
