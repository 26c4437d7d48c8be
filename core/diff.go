package core

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"pkt.systems/burrow/schema"
)

const (
	segWindows   = "windows"
	segTabs      = "tabs"
	segSelected  = "selected"
	segCursor    = "cursor"
	segHistory   = "history"
	segResources = "resources"
)

// Diff computes the ordered edits that turn prev into next. Map keys are
// visited in sorted order so equal inputs always produce equal output.
func Diff(prev, next schema.State) ([]schema.Edit, error) {
	d := &differ{}
	d.windows(prev.Windows, next.Windows)
	d.tabs(prev.Tabs, next.Tabs)
	d.resources(prev.Resources, next.Resources)
	if d.err != nil {
		return nil, d.err
	}
	return d.edits, nil
}

type differ struct {
	edits []schema.Edit
	err   error
}

func (d *differ) emit(op schema.EditOp, path schema.Path, value any) {
	if d.err != nil {
		return
	}
	edit := schema.Edit{Op: op, Path: path}
	if op != schema.EditRemove {
		raw, err := json.Marshal(value)
		if err != nil {
			d.err = err
			return
		}
		edit.Value = raw
	}
	d.edits = append(d.edits, edit)
}

func (d *differ) windows(prev, next map[schema.WindowID]schema.Window) {
	for _, id := range unionKeys(prev, next) {
		a, inPrev := prev[id]
		b, inNext := next[id]
		base := schema.Path{segWindows, string(id)}
		switch {
		case !inNext:
			d.emit(schema.EditRemove, base, nil)
		case !inPrev:
			d.emit(schema.EditAdd, base, b)
		default:
			diffSeq(d, append(base, segTabs), a.Tabs, b.Tabs)
			if a.Selected != b.Selected {
				d.emit(schema.EditReplace, append(base, segSelected), b.Selected)
			}
		}
	}
}

func (d *differ) tabs(prev, next map[schema.TabID]schema.Tab) {
	for _, id := range unionKeys(prev, next) {
		a, inPrev := prev[id]
		b, inNext := next[id]
		base := schema.Path{segTabs, string(id)}
		switch {
		case !inNext:
			d.emit(schema.EditRemove, base, nil)
		case !inPrev:
			d.emit(schema.EditAdd, base, b)
		case a.Window != b.Window:
			// Tabs never move between windows; rewrite the whole entry if
			// one ever does.
			d.emit(schema.EditRemove, base, nil)
			d.emit(schema.EditAdd, base, b)
		default:
			diffSeq(d, append(base, segHistory), a.History, b.History)
			if a.Cursor != b.Cursor {
				d.emit(schema.EditReplace, append(base, segCursor), b.Cursor)
			}
		}
	}
}

func (d *differ) resources(prev, next map[string]schema.Resource) {
	for _, key := range unionKeys(prev, next) {
		a, inPrev := prev[key]
		b, inNext := next[key]
		base := schema.Path{segResources, key}
		switch {
		case !inNext:
			d.emit(schema.EditRemove, base, nil)
		case !inPrev:
			d.emit(schema.EditAdd, base, b)
		default:
			field := func(name string, value any) {
				d.emit(schema.EditReplace, append(base, name), value)
			}
			if a.Status != b.Status {
				field("status", b.Status)
			}
			if a.Version != b.Version {
				field("version", b.Version)
			}
			if !bytes.Equal(a.Payload, b.Payload) {
				field("payload", b.Payload)
			}
			if a.MIMEType != b.MIMEType {
				field("mime_type", b.MIMEType)
			}
			if a.Charset != b.Charset {
				field("charset", b.Charset)
			}
			if a.Error != b.Error {
				field("error", b.Error)
			}
		}
	}
}

// diffSeq trims the common prefix and suffix. An equal-length middle is
// emitted as per-index replaces; otherwise the old middle is removed back to
// front and the new one added front to back.
func diffSeq[T comparable](d *differ, base schema.Path, a, b []T) {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	oldMid := a[prefix : len(a)-suffix]
	newMid := b[prefix : len(b)-suffix]
	at := func(i int) schema.Path {
		path := make(schema.Path, len(base), len(base)+1)
		copy(path, base)
		return append(path, strconv.Itoa(i))
	}
	if len(oldMid) == len(newMid) {
		for i := range newMid {
			if oldMid[i] != newMid[i] {
				d.emit(schema.EditReplace, at(prefix+i), newMid[i])
			}
		}
		return
	}
	for i := len(oldMid) - 1; i >= 0; i-- {
		d.emit(schema.EditRemove, at(prefix+i), nil)
	}
	for i, v := range newMid {
		d.emit(schema.EditAdd, at(prefix+i), v)
	}
}

func unionKeys[K ~string, V any](a, b map[K]V) []K {
	keys := make([]K, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
