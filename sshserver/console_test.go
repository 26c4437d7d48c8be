package sshserver

import (
	"testing"

	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/schema"
)

func TestRenderResource(t *testing.T) {
	menu := schema.Resource{Status: schema.ResourceReady, Payload: []byte("iHi\tfake\t(NULL)\t0\r\n0Notes\t/notes\thost\t70\r\n.\r\n")}
	lines, links := renderResource("gopher://host/1/", menu)
	if len(lines) != 2 || lines[1] != "  1) Notes" {
		t.Fatalf("unexpected menu lines %q", lines)
	}
	if len(links) != 1 || links[0] != "gopher://host/0/notes" {
		t.Fatalf("unexpected links %q", links)
	}

	text := schema.Resource{Status: schema.ResourceReady, MIMEType: "text/plain", Payload: []byte("one\r\ntwo\r\n.\r\n")}
	lines, links = renderResource("gopher://host/0/notes", text)
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" || links != nil {
		t.Fatalf("unexpected text lines %q", lines)
	}

	binary := schema.Resource{Status: schema.ResourceReady, MIMEType: "image/png", Payload: []byte{0x89, 'P', 'N', 'G', 0xff}}
	lines, _ = renderResource("gopher://host/I/logo.png", binary)
	if len(lines) != 1 || lines[0] != "[image/png, 5 bytes]" {
		t.Fatalf("unexpected binary summary %q", lines)
	}
}

func TestApplyNotifiesSelectedTabOnly(t *testing.T) {
	c := &console{window: "main"}
	state := schema.NewState()
	state.Windows["main"] = schema.Window{ID: "main", Tabs: []schema.TabID{"a", "b"}, Selected: "a"}
	state.Tabs["a"] = schema.Tab{ID: "a", Window: "main", History: []schema.Location{{URL: "gopher://a", Mode: schema.NavInitial}}}
	state.Tabs["b"] = schema.Tab{ID: "b", Window: "main", History: []schema.Location{{URL: "gopher://b", Mode: schema.NavInitial}}}
	state.Resources["gopher://a"] = schema.Resource{URL: "gopher://a", Status: schema.ResourceReady, Version: 1, Payload: []byte("x")}
	state.Resources["gopher://b"] = schema.Resource{URL: "gopher://b", Status: schema.ResourceFailed, Version: 1, Error: "refused"}

	notes := c.apply(replication.Update{State: state, Changes: schema.ChangeSet{Seq: 3, Edits: []schema.Edit{
		{Op: schema.EditReplace, Path: schema.Path{"resources", "gopher://b", "status"}},
		{Op: schema.EditReplace, Path: schema.Path{"resources", "gopher://a", "status"}},
		{Op: schema.EditReplace, Path: schema.Path{"resources", "gopher://a", "version"}},
	}}})
	if len(notes) != 1 || notes[0] != "loaded gopher://a (1 bytes, v1)" {
		t.Fatalf("unexpected notes %q", notes)
	}
}
