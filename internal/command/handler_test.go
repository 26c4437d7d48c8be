package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

type fakeService struct {
	visitFn    func(context.Context, schema.VisitRequest) (schema.VisitResponse, error)
	navigateFn func(context.Context, schema.NavigateTabRequest) (schema.NavigateTabResponse, error)
	state      schema.State
}

func (f *fakeService) Visit(ctx context.Context, req schema.VisitRequest) (schema.VisitResponse, error) {
	if f.visitFn != nil {
		return f.visitFn(ctx, req)
	}
	return schema.VisitResponse{}, nil
}

func (f *fakeService) CreateTab(context.Context, schema.CreateTabRequest) (schema.CreateTabResponse, error) {
	return schema.CreateTabResponse{}, nil
}

func (f *fakeService) DestroyTab(context.Context, schema.DestroyTabRequest) (schema.DestroyTabResponse, error) {
	return schema.DestroyTabResponse{}, nil
}

func (f *fakeService) SelectTab(context.Context, schema.SelectTabRequest) (schema.SelectTabResponse, error) {
	return schema.SelectTabResponse{}, nil
}

func (f *fakeService) NavigateTab(ctx context.Context, req schema.NavigateTabRequest) (schema.NavigateTabResponse, error) {
	if f.navigateFn != nil {
		return f.navigateFn(ctx, req)
	}
	return schema.NavigateTabResponse{}, nil
}

func (f *fakeService) Snapshot(context.Context) schema.State {
	return f.state
}

func (f *fakeService) OpenURL(context.Context, schema.OpenURLRequest) (schema.OpenURLResponse, error) {
	return schema.OpenURLResponse{}, nil
}

func TestHandleVisitReportsHandled(t *testing.T) {
	var got schema.VisitRequest
	svc := &fakeService{visitFn: func(_ context.Context, req schema.VisitRequest) (schema.VisitResponse, error) {
		got = req
		return schema.VisitResponse{Handled: true, Tab: "tab1"}, nil
	}}
	handler := NewHandler(svc, HandlerConfig{})
	result, err := handler.HandleLine(context.Background(), "visit gopher://start push tab1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got.URL != "gopher://start" || got.At != "tab1" {
		t.Fatalf("unexpected request %+v", got)
	}
	if result.Handled == nil || !*result.Handled || result.Tab != "tab1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestHandleSnapshotReturnsState(t *testing.T) {
	state := schema.NewState()
	state.Seq = 9
	handler := NewHandler(&fakeService{state: state}, HandlerConfig{})
	result, err := handler.Handle(context.Background(), Action{Name: "snapshot"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.State == nil || result.State.Seq != 9 {
		t.Fatalf("expected snapshot, got %+v", result)
	}
}

func TestHandleNavigationErrorIsDebugOnly(t *testing.T) {
	capture := newLogCapture(t)
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	svc := &fakeService{navigateFn: func(context.Context, schema.NavigateTabRequest) (schema.NavigateTabResponse, error) {
		return schema.NavigateTabResponse{}, schema.ErrIndexOutOfRange
	}}
	handler := NewHandler(svc, HandlerConfig{})
	_, err := handler.HandleLine(ctx, "navigateTab tab1 9")
	if !errors.Is(err, schema.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	rejected := false
	for _, entry := range capture.Entries() {
		switch entry.Message {
		case "command rejected":
			rejected = true
			if entry.Level != "debug" {
				t.Fatalf("navigation rejection must log at debug, got %s", entry.Raw)
			}
		case "command failed":
			t.Fatalf("navigation rejection logged as failure: %s", entry.Raw)
		}
	}
	if !rejected {
		t.Fatalf("expected a rejection entry")
	}
}

func TestHandleAuditLog(t *testing.T) {
	capture := newLogCapture(t)
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	handler := NewHandler(&fakeService{}, HandlerConfig{})
	if _, err := handler.Handle(ctx, Action{ID: "7", Name: "openURL", Args: []json.RawMessage{json.RawMessage(`"gopher://a"`)}}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !hasAuditCommand(capture.Entries(), "action", "openURL", "7") {
		t.Fatalf("expected audit log entry, got %s", capture.buf.String())
	}

	capture = newLogCapture(t)
	logger = pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	ctx = pslog.ContextWithLogger(context.Background(), logger)
	handler = NewHandler(&fakeService{}, HandlerConfig{DisableAuditLogging: true})
	if _, err := handler.Handle(ctx, Action{Name: "snapshot"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.Contains(capture.buf.String(), "audit command") {
		t.Fatalf("audit logging should be disabled")
	}
}

func TestHandleUnknownAction(t *testing.T) {
	handler := NewHandler(&fakeService{}, HandlerConfig{})
	if _, err := handler.Handle(context.Background(), Action{Name: "reload"}); !errors.Is(err, schema.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

type logCapture struct {
	t   *testing.T
	mu  sync.Mutex
	buf bytes.Buffer
}

func newLogCapture(t *testing.T) *logCapture {
	t.Helper()
	return &logCapture{t: t}
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(c.buf.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, parseLogEntry(line))
	}
	return entries
}

func parseLogEntry(line string) logEntry {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return logEntry{Raw: line}
	}
	level := ""
	if value, ok := payload["level"].(string); ok {
		level = value
	} else if value, ok := payload["lvl"].(string); ok {
		level = value
	}
	message := ""
	if value, ok := payload["message"].(string); ok {
		message = value
	} else if value, ok := payload["msg"].(string); ok {
		message = value
	}
	return logEntry{Level: level, Message: message, Fields: payload, Raw: line}
}

func hasAuditCommand(entries []logEntry, commandType, command, actionID string) bool {
	for _, entry := range entries {
		if entry.Level != "debug" || entry.Message != "audit command" {
			continue
		}
		if entry.Fields["command_type"] != commandType || entry.Fields["command"] != command {
			continue
		}
		if actionID != "" && entry.Fields["action_id"] != actionID {
			continue
		}
		return true
	}
	return false
}
