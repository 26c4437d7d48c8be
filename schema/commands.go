package schema

// CommandName is the wire name of a presentation command.
type CommandName string

// Command names accepted on the action channel.
const (
	CommandVisit       CommandName = "visit"
	CommandCreateTab   CommandName = "createTab"
	CommandDestroyTab  CommandName = "destroyTab"
	CommandSelectTab   CommandName = "selectTab"
	CommandNavigateTab CommandName = "navigateTab"
	CommandSnapshot    CommandName = "snapshot"
	CommandOpenURL     CommandName = "openURL"
)

// CommandNames lists every accepted command name.
var CommandNames = []CommandName{
	CommandVisit,
	CommandCreateTab,
	CommandDestroyTab,
	CommandSelectTab,
	CommandNavigateTab,
	CommandSnapshot,
	CommandOpenURL,
}

// Command is a closed set of presentation commands. Only types in this
// package implement it.
type Command interface {
	Name() CommandName
	command()
}

// VisitCommand wraps Visit.
type VisitCommand struct{ VisitRequest }

// CreateTabCommand wraps CreateTab.
type CreateTabCommand struct{ CreateTabRequest }

// DestroyTabCommand wraps DestroyTab.
type DestroyTabCommand struct{ DestroyTabRequest }

// SelectTabCommand wraps SelectTab.
type SelectTabCommand struct{ SelectTabRequest }

// NavigateTabCommand wraps NavigateTab.
type NavigateTabCommand struct{ NavigateTabRequest }

// SnapshotCommand asks for the full state.
type SnapshotCommand struct{}

// OpenURLCommand wraps OpenURL.
type OpenURLCommand struct{ OpenURLRequest }

func (VisitCommand) Name() CommandName       { return CommandVisit }
func (CreateTabCommand) Name() CommandName   { return CommandCreateTab }
func (DestroyTabCommand) Name() CommandName  { return CommandDestroyTab }
func (SelectTabCommand) Name() CommandName   { return CommandSelectTab }
func (NavigateTabCommand) Name() CommandName { return CommandNavigateTab }
func (SnapshotCommand) Name() CommandName    { return CommandSnapshot }
func (OpenURLCommand) Name() CommandName     { return CommandOpenURL }

func (VisitCommand) command()       {}
func (CreateTabCommand) command()   {}
func (DestroyTabCommand) command()  {}
func (SelectTabCommand) command()   {}
func (NavigateTabCommand) command() {}
func (SnapshotCommand) command()    {}
func (OpenURLCommand) command()     {}

// CommandResult is the transport-friendly outcome of a dispatched command.
type CommandResult struct {
	Command CommandName `json:"command"`
	Handled *bool       `json:"handled,omitempty"`
	Tab     TabID       `json:"tab,omitempty"`
	Window  WindowID    `json:"window,omitempty"`
	State   *State      `json:"state,omitempty"`
}
