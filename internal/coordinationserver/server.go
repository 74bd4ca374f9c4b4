package coordinationserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quorumcast/cluster/internal/coordination"
	"github.com/sirupsen/logrus"
)

// DefaultSessionTTL is how long a session survives without a heartbeat
// before its ephemeral znodes are reaped.
const DefaultSessionTTL = 15 * time.Second

// Server exposes a Tree over the JSON-over-HTTP contract
// internal/coordination's client speaks. Sessions that stop heartbeating
// are expired lazily, on the next request the server handles.
type Server struct {
	tree *Tree
	log  *logrus.Entry
	mux  *http.ServeMux

	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time // session id -> last heartbeat
}

// NewServer wires handlers onto a fresh mux backed by a fresh Tree.
func NewServer(log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		tree:       NewTree(),
		log:        log.WithField("component", "coordinationserver"),
		mux:        http.NewServeMux(),
		sessionTTL: DefaultSessionTTL,
		sessions:   make(map[string]time.Time),
	}
	s.routes()
	return s
}

// SetSessionTTL overrides the session expiry window, for tests.
func (s *Server) SetSessionTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionTTL = ttl
}

// sweepExpired reaps every session whose last heartbeat is older than the
// TTL, deleting its ephemeral znodes (and so waking their watchers).
func (s *Server) sweepExpired() {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for id, last := range s.sessions {
		if now.Sub(last) > s.sessionTTL {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.log.WithField("session_id", id).Info("session expired")
		s.tree.CloseSession(id)
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.HandleFunc("/sessions/", s.handleSessionByID)
	s.mux.HandleFunc("/znodes", s.handleZnodes)
	s.mux.HandleFunc("/znodes/children", s.handleChildren)
	s.mux.HandleFunc("/watch", s.handleWatch)
}

// ServeHTTP lets Server be used directly with net/http.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.sweepExpired()
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req coordination.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = time.Now()
	s.mu.Unlock()
	s.tree.OpenSession(sessionID)

	s.log.WithField("session_id", sessionID).WithField("node_id", req.NodeID).Debug("session opened")
	writeJSON(w, http.StatusOK, coordination.OpenSessionResponse{SessionID: sessionID})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/sessions/"):]

	if sessionID, ok := strings.CutSuffix(rest, "/heartbeat"); ok {
		s.handleHeartbeat(w, r, sessionID)
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rest == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	delete(s.sessions, rest)
	s.mu.Unlock()

	s.tree.CloseSession(rest)
	s.log.WithField("session_id", rest).Debug("session closed")
	w.WriteHeader(http.StatusNoContent)
}

// handleHeartbeat refreshes a session's expiry window. An unknown (or
// already expired) session gets 404, which the client treats as session
// loss.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	_, known := s.sessions[sessionID]
	if known {
		s.sessions[sessionID] = time.Now()
	}
	s.mu.Unlock()

	if !known {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleZnodes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req coordination.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	actual, err := s.tree.Create(req.Path, req.Data, req.Type, req.SessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, coordination.CreateResponse{Path: actual})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	data, exists := s.tree.Get(p)
	writeJSON(w, http.StatusOK, coordination.GetResponse{Path: p, Data: data, Exists: exists})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	s.tree.Delete(p)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p := r.URL.Query().Get("path")
	writeJSON(w, http.StatusOK, coordination.ChildrenResponse{Children: s.tree.Children(p)})
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	deleted, timedOut := s.tree.Watch(ctx, p)
	writeJSON(w, http.StatusOK, coordination.WatchResponse{Deleted: deleted, Timeout: timedOut})
}

// Handler lets callers mount Server under their own *http.Server rather
// than call ListenAndServe directly.
func (s *Server) Handler() http.Handler { return s }
