package schema

// Navigation.

// VisitRequest asks to show a URL. At names the target tab for push/replace
// and the context tab for tab-creating modes; it may be empty.
type VisitRequest struct {
	URL  string
	Mode VisitMode
	At   TabID
}

// VisitResponse reports whether the scheme is owned by this browser. When
// Handled is false the caller should hand the URL to an external opener.
type VisitResponse struct {
	Handled bool
	Tab     TabID
}

// NavigateTabRequest moves a tab's history cursor.
type NavigateTabRequest struct {
	Tab   TabID
	Index int
}

// NavigateTabResponse reports the location at the new cursor.
type NavigateTabResponse struct {
	Location Location
}

// Tab lifecycle.

// CreateTabRequest describes a request to create a tab. An empty URL opens
// the start page.
type CreateTabRequest struct {
	Window WindowID
	URL    string
	Select bool
}

// CreateTabResponse reports the created tab.
type CreateTabResponse struct {
	Tab Tab
}

// DestroyTabRequest describes a request to close a tab.
type DestroyTabRequest struct {
	Tab TabID
}

// DestroyTabResponse reports the closed tab.
type DestroyTabResponse struct {
	Tab Tab
}

// SelectTabRequest describes a request to select a tab within a window.
type SelectTabRequest struct {
	Window WindowID
	Tab    TabID
}

// SelectTabResponse reports the window after selection.
type SelectTabResponse struct {
	Window Window
}

// External open.

// OpenURLRequest is an OS-level "open this URL" event.
type OpenURLRequest struct {
	URL    string
	NewTab bool
}

// OpenURLResponse reports where the URL was opened.
type OpenURLResponse struct {
	Handled bool
	Window  WindowID
	Tab     TabID
}
