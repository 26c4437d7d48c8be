package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"pkt.systems/burrow/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing snapshot")
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	state := schema.NewState()
	state.Seq = 4
	state.Windows["main"] = schema.Window{ID: "main", Tabs: []schema.TabID{"tab1"}, Selected: "tab1"}
	state.Tabs["tab1"] = schema.Tab{ID: "tab1", Window: "main", History: []schema.Location{{URL: "gopher://start", Mode: schema.NavInitial}}}
	state.Resources["gopher://start"] = schema.Resource{URL: "gopher://start", Status: schema.ResourceReady, Version: 1, Payload: []byte("menu")}
	if err := store.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.State.Seq != 4 || got.State.Windows["main"].Selected != "tab1" {
		t.Fatalf("unexpected state %+v", got.State)
	}
	if string(got.State.Resources["gopher://start"].Payload) != "menu" {
		t.Fatalf("payload not preserved")
	}
	if got.SavedAt.IsZero() {
		t.Fatalf("expected saved_at")
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestNewStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestRecorderWritesLatestOnStop(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	rec := NewRecorder(store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for seq := uint64(1); seq <= 3; seq++ {
		state := schema.NewState()
		state.Seq = seq
		rec.Observe(state, schema.ChangeSet{Seq: seq})
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("recorder did not stop")
	}
	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.State.Seq != 3 {
		t.Fatalf("expected latest seq 3, got %d", got.State.Seq)
	}
}
