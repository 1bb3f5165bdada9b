// Package httpapi wires the HTTP surface: the websocket upgrade
// endpoint and the /health endpoint, plus CORS middleware.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/ratelimit"
	"whiteboard-server/internal/router"
	"whiteboard-server/internal/session"
)

// Config is the slice of process configuration the HTTP layer needs.
type Config struct {
	AllowedOrigins    []string
	OutboundQueueSize int
	RateLimitPerSec   float64
}

// Server bundles the mux router with the dependencies each handler needs.
type Server struct {
	cfg      Config
	router   *router.Router
	logger   *zap.Logger
	metrics  *metrics.Recorder
	upgrader websocket.Upgrader
	mux      *mux.Router
}

// New builds the HTTP server and registers its routes.
func New(cfg Config, rtr *router.Router, logger *zap.Logger, rec *metrics.Recorder, roomCounter func() int) *Server {
	s := &Server{
		cfg:     cfg,
		router:  rtr,
		logger:  logger,
		metrics: rec,
		upgrader: websocket.Upgrader{
			CheckOrigin: allowedOriginChecker(cfg.AllowedOrigins),
		},
		mux: mux.NewRouter(),
	}

	s.mux.HandleFunc("/ws/{roomId}", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth(roomCounter)).Methods(http.MethodGet)

	return s
}

// Handler returns the CORS-wrapped http.Handler to hand to the server.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.cfg.AllowedOrigins, s.mux)
}

func allowedOriginChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if originAllowed(allowed, r.Header.Get("Origin")) {
			return true
		}
		return false
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// corsMiddleware reflects the request origin (when allowed) rather
// than always answering "*", and answers preflight requests before
// mux's method matching can reject them.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		}
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// The path's roomId is a handshake-time hint for logging only: the
	// authoritative join happens via the join-room message, same as any
	// other room op, so a client can join/leave/rejoin different rooms
	// over one connection.
	requestedRoom := mux.Vars(r)["roomId"]

	displayName := r.URL.Query().Get("username")
	anonymous := displayName == ""
	sessionID := uuid.New().String()
	if anonymous {
		displayName = "anonymous-" + sessionID[:8]
	}

	limiter := ratelimit.New(s.cfg.RateLimitPerSec)
	sess := session.New(
		sessionID,
		session.Identity{DisplayName: displayName, Anonymous: anonymous},
		conn,
		s.router,
		limiter,
		s.logger,
		s.metrics,
		s.cfg.OutboundQueueSize,
		s.router.OnSessionClosed,
	)

	s.logger.Info("websocket connected",
		zap.String("session_id", sessionID), zap.String("requested_room", requestedRoom))

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	sess.Run()
}

// healthResponse is the /health payload shape.
type healthResponse struct {
	Status      string `json:"status"`
	Connections int64  `json:"connections"`
	Rooms       int64  `json:"rooms"`
}

func (s *Server) handleHealth(roomCounter func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.metrics.Snapshot()
		resp := healthResponse{
			Status:      "ok",
			Connections: snap.Connections,
			Rooms:       int64(roomCounter()),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
