package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/burrow/schema"
)

// Action is the wire form of a presentation command: a name plus positional
// arguments.
type Action struct {
	ID   string            `json:"id,omitempty"`
	Name string            `json:"action"`
	Args []json.RawMessage `json:"args,omitempty"`
}

// FromLine converts a parsed text line into an Action with string arguments.
func FromLine(line Line) Action {
	args := make([]json.RawMessage, 0, len(line.Args))
	for _, arg := range line.Args {
		raw, _ := json.Marshal(arg)
		args = append(args, raw)
	}
	return Action{Name: line.Name, Args: args}
}

// ParseAction parses a text line into an Action.
func ParseAction(input string) (Action, error) {
	line, ok := Parse(input)
	if !ok {
		return Action{}, fmt.Errorf("%w: empty command", schema.ErrInvalidRequest)
	}
	return FromLine(line), nil
}

var usage = map[schema.CommandName]string{
	schema.CommandVisit:       "visit <url> [mode] [tab]",
	schema.CommandCreateTab:   "createTab <window> [url] [select]",
	schema.CommandDestroyTab:  "destroyTab <tab>",
	schema.CommandSelectTab:   "selectTab <window> <tab>",
	schema.CommandNavigateTab: "navigateTab <tab> <index>",
	schema.CommandSnapshot:    "snapshot",
	schema.CommandOpenURL:     "openURL <url> [newTab]",
}

// Usage returns the argument synopsis of every command.
func Usage() []string {
	out := make([]string, 0, len(schema.CommandNames))
	for _, name := range schema.CommandNames {
		out = append(out, usage[name])
	}
	return out
}

// Decode maps an Action onto its typed command. Unknown names are
// schema.ErrUnknownCommand; bad arguments are schema.ErrInvalidRequest.
func Decode(a Action) (schema.Command, error) {
	name := schema.CommandName(strings.TrimSpace(a.Name))
	args := argList{name: name, raw: a.Args}
	var cmd schema.Command
	switch name {
	case schema.CommandVisit:
		rawURL := args.str(0, true)
		mode := args.str(1, false)
		at := schema.TabID(args.str(2, false))
		if args.err != nil {
			return nil, args.err
		}
		visitMode, err := schema.DispositionVisitMode(mode, at)
		if err != nil {
			return nil, err
		}
		cmd = schema.VisitCommand{VisitRequest: schema.VisitRequest{URL: rawURL, Mode: visitMode, At: at}}
	case schema.CommandCreateTab:
		cmd = schema.CreateTabCommand{CreateTabRequest: schema.CreateTabRequest{
			Window: schema.WindowID(args.str(0, true)),
			URL:    args.str(1, false),
			Select: args.boolean(2, true),
		}}
	case schema.CommandDestroyTab:
		cmd = schema.DestroyTabCommand{DestroyTabRequest: schema.DestroyTabRequest{
			Tab: schema.TabID(args.str(0, true)),
		}}
	case schema.CommandSelectTab:
		cmd = schema.SelectTabCommand{SelectTabRequest: schema.SelectTabRequest{
			Window: schema.WindowID(args.str(0, true)),
			Tab:    schema.TabID(args.str(1, true)),
		}}
	case schema.CommandNavigateTab:
		cmd = schema.NavigateTabCommand{NavigateTabRequest: schema.NavigateTabRequest{
			Tab:   schema.TabID(args.str(0, true)),
			Index: args.integer(1),
		}}
	case schema.CommandSnapshot:
		cmd = schema.SnapshotCommand{}
	case schema.CommandOpenURL:
		cmd = schema.OpenURLCommand{OpenURLRequest: schema.OpenURLRequest{
			URL:    args.str(0, true),
			NewTab: args.boolean(1, false),
		}}
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownCommand, a.Name)
	}
	if args.err != nil {
		return nil, args.err
	}
	return cmd, nil
}

// argList reads positional arguments and keeps the first error.
type argList struct {
	name schema.CommandName
	raw  []json.RawMessage
	err  error
}

func (a *argList) fail(format string, v ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("%w: %s: %s (usage: %s)", schema.ErrInvalidRequest, a.name, fmt.Sprintf(format, v...), usage[a.name])
	}
}

func (a *argList) get(i int) (json.RawMessage, bool) {
	if i >= len(a.raw) {
		return nil, false
	}
	raw := a.raw[i]
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func (a *argList) str(i int, required bool) string {
	raw, ok := a.get(i)
	if !ok {
		if required {
			a.fail("missing argument %d", i+1)
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		a.fail("argument %d must be a string", i+1)
		return ""
	}
	if required && strings.TrimSpace(s) == "" {
		a.fail("argument %d is empty", i+1)
	}
	return s
}

func (a *argList) integer(i int) int {
	raw, ok := a.get(i)
	if !ok {
		a.fail("missing argument %d", i+1)
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	a.fail("argument %d must be an integer", i+1)
	return 0
}

func (a *argList) boolean(i int, def bool) bool {
	raw, ok := a.get(i)
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	a.fail("argument %d must be a boolean", i+1)
	return def
}
