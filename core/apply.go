package core

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pkt.systems/burrow/schema"
)

// Apply replays a change-set onto prev and returns the resulting state. prev
// is not modified.
func Apply(prev schema.State, cs schema.ChangeSet) (schema.State, error) {
	next := prev.Clone()
	for i, edit := range cs.Edits {
		if err := applyEdit(&next, edit); err != nil {
			return schema.State{}, fmt.Errorf("edit %d (%s %v): %w", i, edit.Op, edit.Path, err)
		}
	}
	if !cs.Empty() {
		next.Seq = cs.Seq
	}
	return next, nil
}

func applyEdit(s *schema.State, e schema.Edit) error {
	if len(e.Path) < 2 {
		return schema.ErrInvalidPath
	}
	switch e.Path[0] {
	case segWindows:
		return applyWindow(s, e)
	case segTabs:
		return applyTab(s, e)
	case segResources:
		return applyResource(s, e)
	default:
		return schema.ErrInvalidPath
	}
}

func applyWindow(s *schema.State, e schema.Edit) error {
	id := schema.WindowID(e.Path[1])
	if len(e.Path) == 2 {
		switch e.Op {
		case schema.EditAdd, schema.EditReplace:
			var w schema.Window
			if err := decode(e.Value, &w); err != nil {
				return err
			}
			s.Windows[id] = w
		case schema.EditRemove:
			delete(s.Windows, id)
		default:
			return schema.ErrInvalidPath
		}
		return nil
	}
	w, ok := s.Windows[id]
	if !ok {
		return schema.ErrWindowNotFound
	}
	switch {
	case len(e.Path) == 3 && e.Path[2] == segSelected && e.Op == schema.EditReplace:
		if err := decode(e.Value, &w.Selected); err != nil {
			return err
		}
	case len(e.Path) == 4 && e.Path[2] == segTabs:
		tabs, err := editSeq(w.Tabs, e)
		if err != nil {
			return err
		}
		w.Tabs = tabs
	default:
		return schema.ErrInvalidPath
	}
	s.Windows[id] = w
	return nil
}

func applyTab(s *schema.State, e schema.Edit) error {
	id := schema.TabID(e.Path[1])
	if len(e.Path) == 2 {
		switch e.Op {
		case schema.EditAdd, schema.EditReplace:
			var t schema.Tab
			if err := decode(e.Value, &t); err != nil {
				return err
			}
			s.Tabs[id] = t
		case schema.EditRemove:
			delete(s.Tabs, id)
		default:
			return schema.ErrInvalidPath
		}
		return nil
	}
	t, ok := s.Tabs[id]
	if !ok {
		return schema.ErrTabNotFound
	}
	switch {
	case len(e.Path) == 3 && e.Path[2] == segCursor && e.Op == schema.EditReplace:
		if err := decode(e.Value, &t.Cursor); err != nil {
			return err
		}
	case len(e.Path) == 4 && e.Path[2] == segHistory:
		history, err := editSeq(t.History, e)
		if err != nil {
			return err
		}
		t.History = history
	default:
		return schema.ErrInvalidPath
	}
	s.Tabs[id] = t
	return nil
}

func applyResource(s *schema.State, e schema.Edit) error {
	key := e.Path[1]
	if len(e.Path) == 2 {
		switch e.Op {
		case schema.EditAdd, schema.EditReplace:
			var r schema.Resource
			if err := decode(e.Value, &r); err != nil {
				return err
			}
			s.Resources[key] = r
		case schema.EditRemove:
			delete(s.Resources, key)
		default:
			return schema.ErrInvalidPath
		}
		return nil
	}
	r, ok := s.Resources[key]
	if !ok || len(e.Path) != 3 || e.Op != schema.EditReplace {
		return schema.ErrInvalidPath
	}
	var target any
	switch e.Path[2] {
	case "status":
		target = &r.Status
	case "version":
		target = &r.Version
	case "payload":
		r.Payload = nil
		target = &r.Payload
	case "mime_type":
		target = &r.MIMEType
	case "charset":
		target = &r.Charset
	case "error":
		target = &r.Error
	default:
		return schema.ErrInvalidPath
	}
	if err := decode(e.Value, target); err != nil {
		return err
	}
	s.Resources[key] = r
	return nil
}

func editSeq[T any](seq []T, e schema.Edit) ([]T, error) {
	idx, err := strconv.Atoi(e.Path[3])
	if err != nil || idx < 0 {
		return nil, schema.ErrInvalidPath
	}
	switch e.Op {
	case schema.EditAdd:
		if idx > len(seq) {
			return nil, schema.ErrIndexOutOfRange
		}
		var v T
		if err := decode(e.Value, &v); err != nil {
			return nil, err
		}
		out := make([]T, 0, len(seq)+1)
		out = append(out, seq[:idx]...)
		out = append(out, v)
		return append(out, seq[idx:]...), nil
	case schema.EditRemove:
		if idx >= len(seq) {
			return nil, schema.ErrIndexOutOfRange
		}
		out := make([]T, 0, len(seq)-1)
		out = append(out, seq[:idx]...)
		return append(out, seq[idx+1:]...), nil
	case schema.EditReplace:
		if idx >= len(seq) {
			return nil, schema.ErrIndexOutOfRange
		}
		var v T
		if err := decode(e.Value, &v); err != nil {
			return nil, err
		}
		out := append([]T(nil), seq...)
		out[idx] = v
		return out, nil
	default:
		return nil, schema.ErrInvalidPath
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing value", schema.ErrInvalidPath)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidPath, err)
	}
	return nil
}
