package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/wricardo/tiltlink/game/session"
	"github.com/wricardo/tiltlink/transport/websocket"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// SessionStore is the read-only view of the session registry used by the API
type SessionStore interface {
	Get(code string) (session.Session, error)
	List() []session.Session
	Count() int
}

// SessionInfo describes an active session
type SessionInfo struct {
	Code      string     `json:"code"`
	Paired    bool       `json:"paired"`
	CreatedAt time.Time  `json:"created_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	JoinURL   string     `json:"join_url"`
}

// Server represents the HTTP server
type Server struct {
	sessions   SessionStore
	hub        *websocket.Hub
	connect    websocket.ConnectFunc
	router     *mux.Router
	staticDirs []string
	publicURL  string
}

// Option configures a Server
type Option func(*Server)

// WithStaticDirs serves files from dirs in order; unknown paths fall back
// to index.html in the first dir.
func WithStaticDirs(dirs ...string) Option {
	return func(s *Server) {
		s.staticDirs = append(s.staticDirs, dirs...)
	}
}

// WithPublicURL sets the base URL used in join links instead of the request host
func WithPublicURL(base string) Option {
	return func(s *Server) {
		s.publicURL = strings.TrimSuffix(base, "/")
	}
}

// NewServer creates a new API server
func NewServer(sessions SessionStore, hub *websocket.Hub, connect websocket.ConnectFunc, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		hub:      hub,
		connect:  connect,
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{code}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{code}/qr", s.handleSessionQR).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Static files with index.html fallback
	s.router.PathPrefix("/").HandlerFunc(s.handleStatic).Methods("GET", "HEAD")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": s.sessions.Count(),
		"clients":  clients,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()

	query := r.URL.Query()
	if paired := query.Get("paired"); paired != "" {
		want, err := strconv.ParseBool(paired)
		if err != nil {
			respondError(w, http.StatusBadRequest, "paired must be true or false")
			return
		}
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.Paired() == want {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, s.sessionInfo(r, sess))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(infos),
		"sessions": infos,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(mux.Vars(r)["code"])

	sess, err := s.sessions.Get(code)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s.sessionInfo(r, sess))
}

func (s *Server) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(mux.Vars(r)["code"])

	if _, err := s.sessions.Get(code); err != nil {
		s.respondLookupError(w, err)
		return
	}

	size := defaultQRSize
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "size must be a number")
			return
		}
		size = min(max(n, minQRSize), maxQRSize)
	}

	png, err := qrcode.Encode(s.joinURL(r, code), qrcode.Medium, size)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("qr generation failed")
		respondError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil || s.connect == nil {
		http.Error(w, "websocket unavailable", http.StatusServiceUnavailable)
		return
	}
	s.hub.ServeWS(w, r, s.connect)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if len(s.staticDirs) == 0 {
		http.NotFound(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	for _, dir := range s.staticDirs {
		f, err := http.Dir(dir).Open(name)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		f.Close()
		if err == nil && !info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, filepath.FromSlash(name)))
			return
		}
	}

	http.ServeFile(w, r, filepath.Join(s.staticDirs[0], "index.html"))
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) sessionInfo(r *http.Request, sess session.Session) SessionInfo {
	info := SessionInfo{
		Code:      sess.Code,
		Paired:    sess.Paired(),
		CreatedAt: sess.CreatedAt,
		JoinURL:   s.joinURL(r, sess.Code),
	}
	if !sess.JoinedAt.IsZero() {
		joined := sess.JoinedAt
		info.JoinedAt = &joined
	}
	return info
}

// joinURL is the link a phone opens to join the session under code
func (s *Server) joinURL(r *http.Request, code string) string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?code=" + url.QueryEscape(code)
}
