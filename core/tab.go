package core

import "pkt.systems/burrow/schema"

// openTab creates a tab seeded with rawURL at the end of the window's tab
// sequence, creating the window when needed. An empty window always selects
// its first tab.
func openTab(st *schema.State, windowID schema.WindowID, rawURL string, selectTab bool) schema.Tab {
	w, ok := st.Windows[windowID]
	if !ok {
		w = schema.Window{ID: windowID, Tabs: []schema.TabID{}}
	}
	t := schema.Tab{
		ID:      newTabID(),
		Window:  windowID,
		History: []schema.Location{{URL: rawURL, Mode: schema.NavInitial}},
		Cursor:  0,
	}
	w.Tabs = append(w.Tabs, t.ID)
	if selectTab || w.Selected == "" {
		w.Selected = t.ID
	}
	st.Windows[windowID] = w
	st.Tabs[t.ID] = t
	return t
}

// closeTab removes a tab from the state and its window. A selected tab is
// replaced by its previous sibling, else the new first tab, else nothing.
func closeTab(st *schema.State, tabID schema.TabID) (schema.Tab, bool) {
	t, ok := st.Tabs[tabID]
	if !ok {
		return schema.Tab{}, false
	}
	delete(st.Tabs, tabID)
	w, ok := st.Windows[t.Window]
	if !ok {
		return t, true
	}
	idx := w.IndexOf(tabID)
	if idx >= 0 {
		w.Tabs = append(w.Tabs[:idx:idx], w.Tabs[idx+1:]...)
	}
	if w.Selected == tabID {
		switch {
		case idx > 0:
			w.Selected = w.Tabs[idx-1]
		case len(w.Tabs) > 0:
			w.Selected = w.Tabs[0]
		default:
			w.Selected = ""
		}
	}
	st.Windows[t.Window] = w
	return t, true
}
