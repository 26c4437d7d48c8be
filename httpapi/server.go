package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/internal/version"
	"pkt.systems/burrow/schema"
)

// Backend is the state the transport replicates.
type Backend interface {
	Snapshot() schema.State
	SubscribeWithSnapshot(observer replication.Observer) (schema.State, func())
}

// ActionHandler runs presentation actions.
type ActionHandler interface {
	Handle(ctx context.Context, action command.Action) (schema.CommandResult, error)
}

// Server serves the presentation API.
type Server struct {
	cfg      Config
	backend  Backend
	actions  ActionHandler
	hub      *Hub
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

const (
	maxActionSize  = 1 << 20
	streamKeepWarm = 25 * time.Second
)

// NewServer constructs an HTTP server. hub must be subscribed to the same
// backend so stream resume sees every change-set.
func NewServer(cfg Config, backend Backend, actions ActionHandler, hub *Hub, m *metrics.Metrics) *Server {
	if hub == nil {
		hub = NewHub(cfg.HubHistory, nil)
	}
	return &Server{
		cfg:     cfg,
		backend: backend,
		actions: actions,
		hub:     hub,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrigin,
		},
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/action", s.handleAction)
	mux.HandleFunc("POST /api/open", s.handleOpen)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return withRequestLogging(mux, s.metrics)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Snapshot())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Describe())
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var action command.Action
	if err := decodeJSON(io.LimitReader(r.Body, maxActionSize), &action); err != nil {
		log.Warn("http action decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.actions.Handle(r.Context(), action)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		URL    string `json:"url"`
		NewTab bool   `json:"new_tab"`
	}
	if err := decodeJSON(io.LimitReader(r.Body, maxActionSize), &payload); err != nil {
		log.Warn("http open decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rawURL, _ := json.Marshal(payload.URL)
	newTab, _ := json.Marshal(payload.NewTab)
	result, err := s.actions.Handle(r.Context(), command.Action{
		Name: string(schema.CommandOpenURL),
		Args: []json.RawMessage{rawURL, newTab},
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStream serves server-sent events. A client reconnecting with
// Last-Event-ID gets the missed change-sets when the hub still holds them,
// and a fresh snapshot otherwise.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	if lastID == 0 {
		lastID = parseUint(r.URL.Query().Get("last_event_id"))
	}

	queue := replication.NewQueue(s.cfg.QueueDepth, s.metrics.ObserverLagged)
	snapshot, unsubscribe := s.backend.SubscribeWithSnapshot(queue)
	defer unsubscribe()
	defer queue.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	replayCount := 0
	resumed := false
	if lastID > 0 {
		if replay, ok := s.hub.Replay(lastID, snapshot.Seq); ok {
			resumed = true
			replayCount = len(replay)
			for _, cs := range replay {
				_ = writeSSEvent(w, changesMessage(cs))
			}
		}
	}
	if !resumed {
		_ = writeSSEvent(w, snapshotMessage(snapshot))
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "resumed", resumed, "replay", replayCount, "seq", snapshot.Seq)
	ticker := time.NewTicker(streamKeepWarm)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case update, ok := <-queue.Updates():
			if !ok {
				if queue.Lagged() {
					log.Warn("http stream lagged", "seq", snapshot.Seq)
					_ = writeSSEvent(w, Message{Type: MessageError, Error: "lagged"})
					flusher.Flush()
				}
				return
			}
			_ = writeSSEvent(w, changesMessage(update.Changes))
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, schema.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidURL),
		errors.Is(err, schema.ErrInvalidMode),
		errors.Is(err, schema.ErrInvalidWindow),
		errors.Is(err, schema.ErrIndexOutOfRange),
		errors.Is(err, schema.ErrUnknownCommand),
		errors.Is(err, schema.ErrUnhandledScheme):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	trimmed := origin
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	return strings.EqualFold(trimmed, r.Host)
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if msg.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", msg.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
