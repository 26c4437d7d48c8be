package gopher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		port     string
		itemType byte
		selector string
		query    string
	}{
		{"gopher://example.org", "example.org", "70", '1', "", ""},
		{"gopher://example.org:7070/0/notes.txt", "example.org", "7070", '0', "/notes.txt", ""},
		{"gopher://example.org/7/search%09cats", "example.org", "70", '7', "/search", "cats"},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		req, err := ParseURL(u)
		if err != nil {
			t.Fatalf("gopher parse %q: %v", tc.raw, err)
		}
		if req.Host != tc.host || req.Port != tc.port || req.ItemType != tc.itemType || req.Selector != tc.selector || req.Query != tc.query {
			t.Fatalf("%q: unexpected request %+v", tc.raw, req)
		}
	}
}

func TestBuiltinStartPage(t *testing.T) {
	c := New(Config{})
	u, _ := url.Parse("gopher://start")
	rc, err := c.Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.Contains(string(data), "About burrow") {
		t.Fatalf("unexpected start page: %q", data)
	}
	u, _ = url.Parse("gopher://start/1/missing")
	if _, err := c.Fetch(context.Background(), u); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchSendsSelectorAndQuery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
		_, _ = io.WriteString(conn, "0result\tsel\thost\t70\r\n.\r\n")
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	u, _ := url.Parse("gopher://" + net.JoinHostPort(host, port) + "/7/find%09kittens")
	rc, err := New(Config{}).Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "0result") {
		t.Fatalf("unexpected payload %q", data)
	}
	if line := <-got; line != "/find\tkittens\r\n" {
		t.Fatalf("unexpected request line %q", line)
	}
}

func TestFetchCancelClosesStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	release := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "ipartial\r\n")
		<-release
	}()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	u, _ := url.Parse("gopher://" + ln.Addr().String() + "/1/slow")
	rc, err := New(Config{}).Fetch(ctx, u)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(rc)
		done <- err
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not stop after cancel")
	}
}
