package command

import (
	"encoding/json"
	"errors"
	"testing"

	"pkt.systems/burrow/schema"
)

func jsonArgs(t *testing.T, args ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			t.Fatalf("marshal %v: %v", arg, err)
		}
		out = append(out, raw)
	}
	return out
}

func TestDecodeVisit(t *testing.T) {
	cmd, err := Decode(Action{Name: "visit", Args: jsonArgs(t, "gopher://start", "replace", "tab1")})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	visit, ok := cmd.(schema.VisitCommand)
	if !ok {
		t.Fatalf("expected VisitCommand, got %T", cmd)
	}
	if visit.URL != "gopher://start" || visit.Mode != schema.VisitReplace || visit.At != "tab1" {
		t.Fatalf("unexpected request %+v", visit.VisitRequest)
	}
}

func TestDecodeVisitForegroundTabInsideTabPushes(t *testing.T) {
	cmd, err := Decode(Action{Name: "visit", Args: jsonArgs(t, "gopher://x", "foreground-tab", "tab1")})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mode := cmd.(schema.VisitCommand).Mode; mode != schema.VisitPush {
		t.Fatalf("expected push, got %q", mode)
	}
}

func TestDecodeCreateTabDefaultsToSelect(t *testing.T) {
	cmd, err := Decode(Action{Name: "createTab", Args: jsonArgs(t, "main")})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req := cmd.(schema.CreateTabCommand).CreateTabRequest
	if req.Window != "main" || req.URL != "" || !req.Select {
		t.Fatalf("unexpected request %+v", req)
	}
	cmd, err = Decode(Action{Name: "createTab", Args: jsonArgs(t, "main", "gopher://a", false)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req := cmd.(schema.CreateTabCommand).CreateTabRequest; req.Select || req.URL != "gopher://a" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDecodeNavigateTabAcceptsNumberOrString(t *testing.T) {
	for _, index := range []any{2, "2"} {
		cmd, err := Decode(Action{Name: "navigateTab", Args: jsonArgs(t, "tab1", index)})
		if err != nil {
			t.Fatalf("decode %v: %v", index, err)
		}
		if req := cmd.(schema.NavigateTabCommand).NavigateTabRequest; req.Index != 2 || req.Tab != "tab1" {
			t.Fatalf("unexpected request %+v", req)
		}
	}
	if _, err := Decode(Action{Name: "navigateTab", Args: jsonArgs(t, "tab1", "two")}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDecodeRejectsMissingArguments(t *testing.T) {
	cases := []Action{
		{Name: "visit"},
		{Name: "destroyTab"},
		{Name: "selectTab", Args: jsonArgs(t, "main")},
		{Name: "navigateTab", Args: jsonArgs(t, "tab1")},
		{Name: "openURL", Args: jsonArgs(t, "")},
		{Name: "destroyTab", Args: jsonArgs(t, 5)},
	}
	for _, tc := range cases {
		if _, err := Decode(tc); !errors.Is(err, schema.ErrInvalidRequest) {
			t.Fatalf("%s %s: expected ErrInvalidRequest, got %v", tc.Name, tc.Args, err)
		}
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	if _, err := Decode(Action{Name: "reload"}); !errors.Is(err, schema.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDecodeEveryCommandName(t *testing.T) {
	args := map[schema.CommandName][]any{
		schema.CommandVisit:       {"gopher://a"},
		schema.CommandCreateTab:   {"main"},
		schema.CommandDestroyTab:  {"tab1"},
		schema.CommandSelectTab:   {"main", "tab1"},
		schema.CommandNavigateTab: {"tab1", 0},
		schema.CommandSnapshot:    nil,
		schema.CommandOpenURL:     {"gopher://a", true},
	}
	for _, name := range schema.CommandNames {
		cmd, err := Decode(Action{Name: string(name), Args: jsonArgs(t, args[name]...)})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cmd.Name() != name {
			t.Fatalf("expected %s, got %s", name, cmd.Name())
		}
	}
	if len(Usage()) != len(schema.CommandNames) {
		t.Fatalf("usage should cover every command")
	}
}

func TestParseActionFromText(t *testing.T) {
	action, err := ParseAction("/openURL gopher://a true")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cmd, err := Decode(action)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req := cmd.(schema.OpenURLCommand).OpenURLRequest
	if req.URL != "gopher://a" || !req.NewTab {
		t.Fatalf("unexpected request %+v", req)
	}
	if _, err := ParseAction("   "); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
