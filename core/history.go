package core

import "pkt.systems/burrow/schema"

// pushLocation drops every entry after the cursor, appends rawURL and moves
// the cursor onto it.
func pushLocation(t *schema.Tab, rawURL string) {
	keep := t.Cursor + 1
	if keep > len(t.History) {
		keep = len(t.History)
	}
	t.History = append(t.History[:keep:keep], schema.Location{URL: rawURL, Mode: schema.NavPush})
	t.Cursor = len(t.History) - 1
}

// replaceLocation overwrites the entry at the cursor.
func replaceLocation(t *schema.Tab, rawURL string) {
	if len(t.History) == 0 {
		t.History = []schema.Location{{URL: rawURL, Mode: schema.NavReplace}}
		t.Cursor = 0
		return
	}
	history := append([]schema.Location(nil), t.History...)
	history[t.Cursor] = schema.Location{URL: rawURL, Mode: schema.NavReplace}
	t.History = history
}

// moveCursor points the cursor at index.
func moveCursor(t *schema.Tab, index int) (schema.Location, error) {
	if index < 0 || index >= len(t.History) {
		return schema.Location{}, schema.ErrIndexOutOfRange
	}
	t.Cursor = index
	return t.History[index], nil
}
