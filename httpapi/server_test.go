package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/burrow/core"
	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/internal/protocol"
	"pkt.systems/burrow/schema"
)

type testStack struct {
	server *httptest.Server
	store  *core.Store
	hub    *Hub
}

func newTestStack(t *testing.T, historySize int) *testStack {
	t.Helper()
	reg, err := protocol.NewRegistry(protocol.Func{
		Name: "gopher",
		Fn: func(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("iHello\t\tnull\t0\r\n.\r\n")), nil
		},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := core.NewStore(core.StoreDeps{})
	hub := NewHub(historySize, nil)
	t.Cleanup(store.Subscribe(hub))
	coordinator := fetch.New(fetch.Config{Timeout: 2 * time.Second}, fetch.Deps{Resolver: reg, Writer: store})
	t.Cleanup(coordinator.Close)
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{Store: store, Fetcher: coordinator, Resolver: reg})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := command.NewHandler(svc, command.HandlerConfig{})
	srv := NewServer(Config{HubHistory: historySize, QueueDepth: 64}, store, handler, hub, metrics.New())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testStack{server: ts, store: store, hub: hub}
}

func postJSON(t *testing.T, target string, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(target, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func addWindow(t *testing.T, store *core.Store, id schema.WindowID) {
	t.Helper()
	if _, err := store.Mutate(context.Background(), "test", func(tx *core.Tx) error {
		tx.State().Windows[id] = schema.Window{ID: id, Tabs: []schema.TabID{}}
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
}

func TestActionThenState(t *testing.T) {
	stack := newTestStack(t, 16)
	resp, data := postJSON(t, stack.server.URL+"/api/action", `{"id":"1","action":"createTab","args":["main","gopher://host/1/"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var result schema.CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Command != schema.CommandCreateTab || result.Tab == "" {
		t.Fatalf("unexpected result %+v", result)
	}

	stateResp, err := http.Get(stack.server.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer stateResp.Body.Close()
	var state schema.State
	if err := json.NewDecoder(stateResp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if _, ok := state.Tabs[result.Tab]; !ok {
		t.Fatalf("expected tab %s in state", result.Tab)
	}
	if state.Windows["main"].Selected != result.Tab {
		t.Fatalf("expected new tab selected")
	}
}

func TestActionErrorStatus(t *testing.T) {
	stack := newTestStack(t, 16)
	cases := []struct {
		body   string
		status int
	}{
		{`{"action":"fly"}`, http.StatusBadRequest},
		{`{"action":"destroyTab","args":["nope"]}`, http.StatusNotFound},
		{`{"action":`, http.StatusBadRequest},
		{`{"action":"snapshot","extra":true}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, data := postJSON(t, stack.server.URL+"/api/action", tc.body)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.body, tc.status, resp.StatusCode, data)
		}
		if !bytes.Contains(data, []byte(`"error"`)) {
			t.Fatalf("%s: expected error body, got %s", tc.body, data)
		}
	}
}

func TestOpenEndpoint(t *testing.T) {
	stack := newTestStack(t, 16)
	resp, data := postJSON(t, stack.server.URL+"/api/open", `{"url":"gopher://host/0/readme"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var result schema.CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Handled == nil || !*result.Handled || result.Window != "main" || result.Tab == "" {
		t.Fatalf("unexpected open result %+v", result)
	}

	_, data = postJSON(t, stack.server.URL+"/api/open", `{"url":"https://example.com/"}`)
	result = schema.CommandResult{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Handled == nil || *result.Handled {
		t.Fatalf("expected unhandled web url, got %s", data)
	}
}

func TestWebSocketSnapshotThenChanges(t *testing.T) {
	stack := newTestStack(t, 16)
	addWindow(t, stack.store, "side")

	wsURL := "ws" + strings.TrimPrefix(stack.server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != MessageSnapshot || first.State == nil || first.Seq != 1 {
		t.Fatalf("expected snapshot at seq 1, got %+v", first)
	}
	if _, ok := first.State.Windows["side"]; !ok {
		t.Fatalf("snapshot missing window")
	}

	if err := conn.WriteJSON(command.Action{ID: "a1", Name: "createTab", Args: []json.RawMessage{json.RawMessage(`"main"`)}}); err != nil {
		t.Fatalf("write action: %v", err)
	}

	state := *first.State
	var result *schema.CommandResult
	for result == nil || state.Resources["gopher://start"].Status != schema.ResourceReady {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case MessageChanges:
			if msg.Changes.Seq != state.Seq+1 {
				t.Fatalf("change-set gap: %d after %d", msg.Changes.Seq, state.Seq)
			}
			next, err := core.Apply(state, *msg.Changes)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			state = next
		case MessageResult:
			if msg.ID != "a1" || msg.Error != "" || msg.Result == nil {
				t.Fatalf("unexpected result %+v", msg)
			}
			result = msg.Result
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}
	if _, ok := state.Tabs[result.Tab]; !ok {
		t.Fatalf("replicated state missing tab %s", result.Tab)
	}
}

func TestWebSocketBadMessageKeepsConnection(t *testing.T) {
	stack := newTestStack(t, 16)
	wsURL := "ws" + strings.TrimPrefix(stack.server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != MessageSnapshot {
		t.Fatalf("expected snapshot, got %+v err=%v", msg, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != MessageError {
		t.Fatalf("expected error message, got %+v err=%v", msg, err)
	}
	if err := conn.WriteJSON(command.Action{ID: "s", Name: "snapshot"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != MessageResult || msg.Result == nil || msg.Result.State == nil {
		t.Fatalf("expected snapshot result, got %+v err=%v", msg, err)
	}
}

func readStream(t *testing.T, r *bufio.Reader, n int) []Message {
	t.Helper()
	var out []Message
	for len(out) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !ok {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func openStream(t *testing.T, target, lastID string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestStreamResumesFromLastEventID(t *testing.T) {
	stack := newTestStack(t, 16)
	for _, id := range []schema.WindowID{"a", "b", "c"} {
		addWindow(t, stack.store, id)
	}
	stream := openStream(t, stack.server.URL+"/api/stream", "1")
	events := readStream(t, stream, 2)
	for i, msg := range events {
		if msg.Type != MessageChanges || msg.Seq != uint64(i+2) {
			t.Fatalf("event %d: expected changes seq %d, got %+v", i, i+2, msg)
		}
	}
	addWindow(t, stack.store, "d")
	live := readStream(t, stream, 1)
	if live[0].Type != MessageChanges || live[0].Seq != 4 {
		t.Fatalf("expected live change-set 4, got %+v", live[0])
	}
}

func TestStreamFallsBackToSnapshot(t *testing.T) {
	stack := newTestStack(t, 1)
	for _, id := range []schema.WindowID{"a", "b", "c"} {
		addWindow(t, stack.store, id)
	}
	stream := openStream(t, stack.server.URL+"/api/stream", "1")
	events := readStream(t, stream, 1)
	if events[0].Type != MessageSnapshot || events[0].State == nil || len(events[0].State.Windows) != 3 {
		t.Fatalf("expected snapshot fallback, got %+v", events[0])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stack := newTestStack(t, 16)
	addWindow(t, stack.store, "a")
	state, err := http.Get(stack.server.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	_ = state.Body.Close()
	resp, err := http.Get(stack.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`burrow_http_requests_total{code="2xx",route="GET /api/state"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestWebSocketResultFollowsItsChanges(t *testing.T) {
	stack := newTestStack(t, 16)
	wsURL := "ws" + strings.TrimPrefix(stack.server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil || first.Type != MessageSnapshot || first.State == nil {
		t.Fatalf("expected snapshot, got %+v err=%v", first, err)
	}
	state := *first.State

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("t%d", i)
		if err := conn.WriteJSON(command.Action{ID: id, Name: "createTab", Args: []json.RawMessage{json.RawMessage(`"main"`)}}); err != nil {
			t.Fatalf("write action: %v", err)
		}
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("read: %v", err)
			}
			if msg.Type == MessageChanges {
				next, err := core.Apply(state, *msg.Changes)
				if err != nil {
					t.Fatalf("apply: %v", err)
				}
				state = next
				continue
			}
			if msg.Type != MessageResult || msg.ID != id || msg.Result == nil {
				t.Fatalf("unexpected message %+v", msg)
			}
			if _, ok := state.Tabs[msg.Result.Tab]; !ok {
				t.Fatalf("result for %s arrived before the change-set creating tab %s", id, msg.Result.Tab)
			}
			break
		}
	}
}
