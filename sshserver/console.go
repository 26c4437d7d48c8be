package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"

	"pkt.systems/burrow/internal/command"
	"pkt.systems/burrow/internal/protocol/gopher"
	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/schema"
)

var consoleHelp = []string{
	"tabs              list tabs in this window",
	"show [tab]        print the page of a tab (default: selected)",
	"go <n>            follow link n of the last page shown",
	"back | forward    move in the selected tab's history",
	"quit              close the session",
}

// console is one SSH session. Local commands read the replicated state;
// everything else goes to the action handler.
type console struct {
	term    *term.Terminal
	handler ActionHandler
	window  schema.WindowID

	mu      sync.Mutex
	state   schema.State
	shownIn schema.TabID
	links   []string
}

func newConsole(rw io.ReadWriter, handler ActionHandler, window schema.WindowID, prompt string) *console {
	return &console{
		term:    term.NewTerminal(rw, prompt),
		handler: handler,
		window:  window,
	}
}

// Run follows the backend until the client disconnects or types quit.
// hangup is called when the session fell too far behind to continue.
func (c *console) Run(ctx context.Context, backend Backend, depth int, hangup func()) error {
	queue := replication.NewQueue(depth, nil)
	snapshot, cancel := backend.SubscribeWithSnapshot(queue)
	defer cancel()
	defer queue.Close()
	c.setState(snapshot)

	c.printf("burrow console, window %s at seq %d. Type help for commands.\n", c.window, snapshot.Seq)
	done := make(chan struct{})
	defer close(done)
	go c.follow(queue, done, hangup)

	for {
		line, err := c.term.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := c.exec(ctx, line); quit {
			return nil
		}
	}
}

func (c *console) follow(queue *replication.Queue, done <-chan struct{}, hangup func()) {
	for update := range queue.Updates() {
		for _, note := range c.apply(update) {
			c.printf("%s\n", note)
		}
	}
	select {
	case <-done:
		return
	default:
	}
	if queue.Lagged() {
		c.printf("session fell behind; reconnect to resume\n")
		if hangup != nil {
			hangup()
		}
	}
}

// apply installs the new state and returns notices for resources that
// finished loading in this window's selected tab.
func (c *console) apply(update replication.Update) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = update.State
	current := ""
	if tab, ok := c.selectedLocked(); ok {
		if loc, ok := tab.Current(); ok {
			current = loc.URL
		}
	}
	var notes []string
	seen := make(map[string]bool)
	for _, edit := range update.Changes.Edits {
		if len(edit.Path) < 2 || edit.Path[0] != "resources" || edit.Path[1] != current || seen[current] {
			continue
		}
		seen[current] = true
		res := update.State.Resources[current]
		switch res.Status {
		case schema.ResourceReady:
			notes = append(notes, fmt.Sprintf("loaded %s (%d bytes, v%d)", current, len(res.Payload), res.Version))
		case schema.ResourceFailed:
			notes = append(notes, fmt.Sprintf("failed %s: %s", current, res.Error))
		}
	}
	return notes
}

func (c *console) exec(ctx context.Context, input string) bool {
	line, ok := command.Parse(input)
	if !ok {
		return false
	}
	switch line.Name {
	case "quit", "exit":
		return true
	case "help":
		for _, l := range consoleHelp {
			c.printf("%s\n", l)
		}
		for _, l := range command.Usage() {
			c.printf("%s\n", l)
		}
	case "tabs":
		c.printTabs()
	case "show":
		var tabID schema.TabID
		if len(line.Args) > 0 {
			tabID = schema.TabID(line.Args[0])
		}
		c.show(tabID)
	case "go":
		c.followLink(ctx, line.Args)
	case "back":
		c.step(ctx, -1)
	case "forward":
		c.step(ctx, 1)
	default:
		result, err := c.handler.HandleLine(ctx, input)
		if err != nil {
			c.printf("error: %v\n", err)
			return false
		}
		c.printResult(result)
	}
	return false
}

func (c *console) printTabs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.state.Windows[c.window]
	if !ok || len(w.Tabs) == 0 {
		c.printf("no tabs in %s\n", c.window)
		return
	}
	for _, id := range w.Tabs {
		tab := c.state.Tabs[id]
		mark := " "
		if id == w.Selected {
			mark = "*"
		}
		loc, _ := tab.Current()
		status := c.state.Resources[loc.URL].Status
		c.printf("%s %s %s [%s] %d/%d\n", mark, id, loc.URL, status, tab.Cursor+1, len(tab.History))
	}
}

func (c *console) show(tabID schema.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		tab schema.Tab
		ok  bool
	)
	if tabID == "" {
		tab, ok = c.selectedLocked()
	} else {
		tab, ok = c.state.Tabs[tabID]
	}
	if !ok {
		c.printf("error: %v\n", schema.ErrTabNotFound)
		return
	}
	loc, ok := tab.Current()
	if !ok {
		c.printf("tab %s has no location\n", tab.ID)
		return
	}
	res := c.state.Resources[loc.URL]
	switch res.Status {
	case schema.ResourceReady:
	case schema.ResourceFailed:
		c.printf("%s failed: %s\n", loc.URL, res.Error)
		return
	default:
		c.printf("%s is loading\n", loc.URL)
		return
	}
	lines, links := renderResource(loc.URL, res)
	c.shownIn = tab.ID
	c.links = links
	for _, l := range lines {
		c.printf("%s\n", l)
	}
}

func (c *console) followLink(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: go <n>\n")
		return
	}
	n, err := strconv.Atoi(args[0])
	c.mu.Lock()
	tabID := c.shownIn
	var target string
	if err == nil && n >= 1 && n <= len(c.links) {
		target = c.links[n-1]
	}
	c.mu.Unlock()
	if target == "" {
		c.printf("error: no link %s on the last page shown\n", args[0])
		return
	}
	c.run(ctx, command.FromLine(command.Line{
		Name: string(schema.CommandVisit),
		Args: []string{target, string(schema.VisitPush), string(tabID)},
	}))
}

func (c *console) step(ctx context.Context, delta int) {
	c.mu.Lock()
	tab, ok := c.selectedLocked()
	c.mu.Unlock()
	if !ok {
		c.printf("error: %v\n", schema.ErrTabNotFound)
		return
	}
	c.run(ctx, command.FromLine(command.Line{
		Name: string(schema.CommandNavigateTab),
		Args: []string{string(tab.ID), strconv.Itoa(tab.Cursor + delta)},
	}))
}

func (c *console) run(ctx context.Context, action command.Action) {
	result, err := c.handler.Handle(ctx, action)
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	c.printResult(result)
}

func (c *console) printResult(result schema.CommandResult) {
	parts := []string{"ok", string(result.Command)}
	if result.Handled != nil && !*result.Handled {
		parts = append(parts, "unhandled")
	}
	if result.Window != "" {
		parts = append(parts, "window="+string(result.Window))
	}
	if result.Tab != "" {
		parts = append(parts, "tab="+string(result.Tab))
	}
	if result.State != nil {
		parts = append(parts, fmt.Sprintf("seq=%d tabs=%d resources=%d", result.State.Seq, len(result.State.Tabs), len(result.State.Resources)))
	}
	c.printf("%s\n", strings.Join(parts, " "))
}

func (c *console) selectedLocked() (schema.Tab, bool) {
	w, ok := c.state.Windows[c.window]
	if !ok || w.Selected == "" {
		return schema.Tab{}, false
	}
	tab, ok := c.state.Tabs[w.Selected]
	return tab, ok
}

func (c *console) resize(width, height int) {
	_ = c.term.SetSize(width, height)
}

func (c *console) setState(state schema.State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.term, format, args...)
}

// renderResource turns a ready resource into printable lines plus the link
// targets numbered in them.
func renderResource(rawURL string, res schema.Resource) ([]string, []string) {
	if isGopherMenu(rawURL) {
		var lines, links []string
		for _, item := range gopher.ParseMenu(res.Payload) {
			target := item.URL()
			if target == "" {
				lines = append(lines, "     "+item.Display)
				continue
			}
			links = append(links, target)
			lines = append(lines, fmt.Sprintf("%3d) %s", len(links), item.Display))
		}
		return lines, links
	}
	if !isText(res) {
		return []string{fmt.Sprintf("[%s, %d bytes]", res.MIMEType, len(res.Payload))}, nil
	}
	text := strings.ReplaceAll(string(res.Payload), "\r\n", "\n")
	text = strings.TrimSuffix(strings.TrimRight(text, "\n"), "\n.")
	return strings.Split(text, "\n"), nil
}

func isGopherMenu(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "gopher") {
		return false
	}
	req, err := gopher.ParseURL(u)
	if err != nil {
		return false
	}
	return req.ItemType == '1' || req.ItemType == '7'
}

func isText(res schema.Resource) bool {
	if strings.HasPrefix(res.MIMEType, "text/") || res.MIMEType == "" {
		return true
	}
	return utf8.Valid(res.Payload)
}
