package schema

// WindowID identifies a browser window.
type WindowID string

// TabID identifies a tab.
type TabID string

// NavMode records how a history entry was produced.
type NavMode string

const (
	// NavInitial marks the entry a tab was created with.
	NavInitial NavMode = "initial"
	// NavPush marks an entry appended after the cursor.
	NavPush NavMode = "push"
	// NavReplace marks an entry that overwrote the entry at the cursor.
	NavReplace NavMode = "replace"
)

// VisitMode selects where a visited URL is shown.
type VisitMode string

const (
	// VisitPush appends to the target tab's history.
	VisitPush VisitMode = "push"
	// VisitReplace overwrites the target tab's current entry.
	VisitReplace VisitMode = "replace"
	// VisitNewTab opens a new selected tab.
	VisitNewTab VisitMode = "newTab"
	// VisitNewBackgroundTab opens a new tab without selecting it.
	VisitNewBackgroundTab VisitMode = "newBackgroundTab"
)

// CreatesTab reports whether the mode opens a new tab.
func (m VisitMode) CreatesTab() bool {
	return m == VisitNewTab || m == VisitNewBackgroundTab
}

// OpenURLPolicy picks the window an externally opened URL lands in.
type OpenURLPolicy string

const (
	// OpenURLNamed always targets the configured window.
	OpenURLNamed OpenURLPolicy = "named"
	// OpenURLLastActive targets the window that was used most recently.
	OpenURLLastActive OpenURLPolicy = "last-active"
)

// ResourceStatus is the fetch status of a cached resource.
type ResourceStatus string

const (
	// ResourcePending means a fetch has been issued and not completed.
	ResourcePending ResourceStatus = "pending"
	// ResourceReady means the last fetch succeeded.
	ResourceReady ResourceStatus = "ready"
	// ResourceFailed means the last fetch failed.
	ResourceFailed ResourceStatus = "failed"
)
