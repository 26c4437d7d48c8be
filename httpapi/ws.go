package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleWebSocket replicates state over a WebSocket. The first message is a
// snapshot, then every change-set in order. Actions sent by the client are
// answered with a result message carrying the action id, written after the
// change-set the action produced. A client that
// falls behind is disconnected with a policy-violation close frame and has
// to reconnect for a fresh snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("http ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := replication.NewQueue(s.cfg.QueueDepth, s.metrics.ObserverLagged)
	snapshot, unsubscribe := s.backend.SubscribeWithSnapshot(queue)
	defer unsubscribe()
	defer queue.Close()

	results := make(chan Message, 16)
	readDone := make(chan struct{})
	go s.readActions(ctx, conn, log, results, readDone)

	if err := writeMessage(conn, snapshotMessage(snapshot)); err != nil {
		log.Warn("http ws write failed", "err", err)
		return
	}
	log.Info("http ws opened", "seq", snapshot.Seq)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-readDone:
			log.Info("http ws closed")
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("http ws ping failed", "err", err)
				return
			}
		case msg := <-results:
			// The action's change-set is queued before Handle returns.
			if !s.drainChanges(conn, queue, log) {
				return
			}
			if err := writeMessage(conn, msg); err != nil {
				log.Warn("http ws write failed", "err", err)
				return
			}
		case update, ok := <-queue.Updates():
			if !s.writeChanges(conn, queue, update, ok, log) {
				return
			}
		}
	}
}

// drainChanges writes every change-set already waiting in queue.
func (s *Server) drainChanges(conn *websocket.Conn, queue *replication.Queue, log pslog.Logger) bool {
	for {
		select {
		case update, ok := <-queue.Updates():
			if !s.writeChanges(conn, queue, update, ok, log) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *Server) writeChanges(conn *websocket.Conn, queue *replication.Queue, update replication.Update, ok bool, log pslog.Logger) bool {
	if !ok {
		if queue.Lagged() {
			log.Warn("http ws lagged", "depth", s.cfg.QueueDepth)
			closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "lagged")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWait))
		}
		return false
	}
	if err := writeMessage(conn, changesMessage(update.Changes)); err != nil {
		log.Warn("http ws write failed", "err", err)
		return false
	}
	return true
}

func (s *Server) readActions(ctx context.Context, conn *websocket.Conn, log pslog.Logger, results chan<- Message, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxActionSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("http ws read failed", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var msg Message
		var action command.Action
		if err := json.Unmarshal(data, &action); err != nil {
			msg = Message{Type: MessageError, Error: fmt.Sprintf("%v: %v", schema.ErrInvalidRequest, err)}
		} else {
			msg = Message{Type: MessageResult, ID: action.ID}
			result, err := s.actions.Handle(ctx, action)
			if err != nil {
				msg.Error = err.Error()
			} else {
				msg.Result = &result
			}
		}
		select {
		case results <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}

