package gopher

import "testing"

func TestParseMenuBuiltinStart(t *testing.T) {
	data, err := builtinPage("")
	if err != nil {
		t.Fatalf("start page: %v", err)
	}
	items := ParseMenu(data)
	if len(items) != 8 {
		t.Fatalf("expected 8 items, got %d", len(items))
	}
	if !items[0].Info() || items[0].Display != "burrow" || items[0].URL() != "" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	about := items[4]
	if about.Type != '1' || about.Display != "About burrow" {
		t.Fatalf("unexpected about item %+v", about)
	}
	if got := about.URL(); got != "gopher://start/1/about" {
		t.Fatalf("about url = %q", got)
	}
}

func TestParseMenuKeepsNonStandardPort(t *testing.T) {
	items := ParseMenu([]byte("0Notes\t/notes.txt\texample.org\t7070\r\nplain line\r\n.\r\nignored\tx\ty\t70\r\n"))
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if got := items[0].URL(); got != "gopher://example.org:7070/0/notes.txt" {
		t.Fatalf("url = %q", got)
	}
	if !items[1].Info() || items[1].Display != "plain line" {
		t.Fatalf("expected malformed line kept as info, got %+v", items[1])
	}
}
