package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithURLAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithURL(newCaptureLogger(capture), "gopher://start")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["url"] != "gopher://start" {
		t.Fatalf("expected url field, got %+v", entry)
	}
}

func TestWithURLSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	log := WithURL(newCaptureLogger(capture), "")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["url"]; ok {
		t.Fatalf("did not expect url field, got %+v", entry)
	}
}

func TestWithWindowTabAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithWindowTab(ctx, "main", "tab1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["window"] != "main" {
		t.Fatalf("expected window field, got %+v", entry)
	}
	if entry["tab"] != "tab1" {
		t.Fatalf("expected tab field, got %+v", entry)
	}
}

func TestWithTabSkipsDuplicateMarker(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("tab", schema.TabID("tab1"))
	ctx := ContextWithTabLogger(context.Background(), logger, "tab1")
	WithTab(ctx, "tab1").Info("hello")

	line := capture.buf.String()
	if n := bytes.Count([]byte(line), []byte(`"tab"`)); n != 1 {
		t.Fatalf("expected one tab field, got %d in %s", n, line)
	}
}

func TestCopyContextFields(t *testing.T) {
	src := ContextWithTab(ContextWithWindow(context.Background(), "main"), "tab1")
	dst := CopyContextFields(context.Background(), src)
	if dst.Value(windowKey) != schema.WindowID("main") {
		t.Fatalf("expected window marker to be copied")
	}
	if dst.Value(tabKey) != schema.TabID("tab1") {
		t.Fatalf("expected tab marker to be copied")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
