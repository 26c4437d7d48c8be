package schema

// Location is one history entry. It is never modified after creation.
type Location struct {
	URL  string  `json:"url"`
	Mode NavMode `json:"mode"`
}

// Window is an ordered set of tabs with one selected.
type Window struct {
	ID       WindowID `json:"id"`
	Tabs     []TabID  `json:"tabs"`
	Selected TabID    `json:"selected"`
}

// Tab owns a history stack and a cursor into it.
type Tab struct {
	ID      TabID      `json:"id"`
	Window  WindowID   `json:"window"`
	History []Location `json:"history"`
	Cursor  int        `json:"cursor"`
}

// Current returns the location at the cursor.
func (t Tab) Current() (Location, bool) {
	if t.Cursor < 0 || t.Cursor >= len(t.History) {
		return Location{}, false
	}
	return t.History[t.Cursor], true
}

// Resource is the cached result of fetching a URL.
type Resource struct {
	URL      string         `json:"url"`
	Status   ResourceStatus `json:"status"`
	Version  uint64         `json:"version"`
	Payload  []byte         `json:"payload,omitempty"`
	MIMEType string         `json:"mime_type,omitempty"`
	Charset  string         `json:"charset,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// State is the full navigation aggregate replicated to presentation clients.
type State struct {
	Seq       uint64              `json:"seq"`
	Windows   map[WindowID]Window `json:"windows"`
	Tabs      map[TabID]Tab       `json:"tabs"`
	Resources map[string]Resource `json:"resources"`
}

// NewState returns an empty state.
func NewState() State {
	return State{
		Windows:   make(map[WindowID]Window),
		Tabs:      make(map[TabID]Tab),
		Resources: make(map[string]Resource),
	}
}

// Clone deep-copies maps and slices. Payload bytes are shared; they are
// never written after a resource is stored.
func (s State) Clone() State {
	out := State{
		Seq:       s.Seq,
		Windows:   make(map[WindowID]Window, len(s.Windows)),
		Tabs:      make(map[TabID]Tab, len(s.Tabs)),
		Resources: make(map[string]Resource, len(s.Resources)),
	}
	for id, w := range s.Windows {
		out.Windows[id] = w.Clone()
	}
	for id, t := range s.Tabs {
		out.Tabs[id] = t.Clone()
	}
	for key, r := range s.Resources {
		out.Resources[key] = r
	}
	return out
}

// Clone copies the tab sequence.
func (w Window) Clone() Window {
	w.Tabs = append([]TabID(nil), w.Tabs...)
	return w
}

// Clone copies the history stack.
func (t Tab) Clone() Tab {
	t.History = append([]Location(nil), t.History...)
	return t
}

// IndexOf returns the position of a tab in the window or -1.
func (w Window) IndexOf(id TabID) int {
	for i, tabID := range w.Tabs {
		if tabID == id {
			return i
		}
	}
	return -1
}
