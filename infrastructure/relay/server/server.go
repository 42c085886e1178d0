package server

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"relaychat/auth"
	"relaychat/errors"
	"relaychat/infrastructure/relay"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxRequestBody = 1 << 16
	serviceName    = "relaychat"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Server exposes the credential endpoint and the relay websocket.
type Server struct {
	log          *slog.Logger
	hub          *Hub
	secret       []byte
	grantTTL     time.Duration
	writeTimeout time.Duration
	startedAt    time.Time
}

func NewServer(log *slog.Logger, hub *Hub, secret []byte, grantTTL, writeTimeout time.Duration) *Server {
	return &Server{
		log:          log,
		hub:          hub,
		secret:       secret,
		grantTTL:     grantTTL,
		writeTimeout: writeTimeout,
		startedAt:    time.Now(),
	}
}

// Mount registers all routes on the provided router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/", s.info)
	r.Get("/health", s.health)
	r.Post("/token", s.token)
	r.Get("/rtc", s.rtc)
}

// Router builds a chi router with the server mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Mount(r)
	return r
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"endpoints": map[string]string{
			"token":  "POST /token",
			"health": "GET /health",
			"relay":  "GET /rtc",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	rooms, participants := s.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"rooms":        rooms,
		"participants": participants,
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	var body auth.TokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req, err := auth.ValidateTokenRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "room and identity are required", err.Error())
		return
	}
	grant, err := auth.GenerateGrant(s.secret, req.Room, req.Identity, req.Name, s.grantTTL)
	if err != nil {
		s.log.Error("Grant signing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token", "")
		return
	}
	s.log.Info("Token issued", "room", req.Room, "identity", req.Identity)
	writeJSON(w, http.StatusOK, tokenResponse{Token: grant, Room: req.Room, Identity: req.Identity})
}

func (s *Server) rtc(w http.ResponseWriter, r *http.Request) {
	grant := bearer(r)
	if grant == "" {
		writeError(w, http.StatusUnauthorized, "missing grant", "")
		return
	}
	claims, err := auth.ValidateGrant(s.secret, grant)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid grant", err.Error())
		return
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(r.Context(), relay.NewConn(ws, 0, s.writeTimeout), claims)
}

// bearer reads the grant from the Authorization header, or from the
// access_token query parameter for clients that cannot set headers.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, errorResponse{Error: message, Details: details})
}

// Listener serves HTTP until its context is done. It is a supervised worker.
type Listener struct {
	log             *slog.Logger
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewListener(log *slog.Logger, addr string, handler http.Handler, shutdownTimeout time.Duration) *Listener {
	return &Listener{
		log:             log,
		srv:             &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run fails with ErrWorkerFatal when the address cannot be bound.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.srv.Addr)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrWorkerFatal, err)
	}
	errCh := make(chan error, 1)
	go func() {
		l.log.Info("Relay listening", "addr", ln.Addr().String())
		errCh <- l.srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if goerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
		defer cancel()
		if err := l.srv.Shutdown(shutdownCtx); err != nil {
			l.log.Warn("Relay shutdown incomplete", "error", err)
		}
		return nil
	}
}
