package schema

import "encoding/json"

// EditOp is a primitive edit kind.
type EditOp string

const (
	// EditAdd inserts a value at a path.
	EditAdd EditOp = "add"
	// EditReplace overwrites the value at a path.
	EditReplace EditOp = "replace"
	// EditRemove deletes the value at a path.
	EditRemove EditOp = "remove"
)

// Path addresses a value inside State, e.g. ["tabs", "<id>", "cursor"].
type Path []string

// Edit is a single primitive change.
type Edit struct {
	Op    EditOp          `json:"op"`
	Path  Path            `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ChangeSet is the ordered edit list produced by one mutation.
type ChangeSet struct {
	Seq     uint64 `json:"seq"`
	Command string `json:"command"`
	Edits   []Edit `json:"edits"`
}

// Empty reports whether the change-set carries no edits.
func (c ChangeSet) Empty() bool {
	return len(c.Edits) == 0
}
