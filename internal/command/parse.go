package command

import (
	"strings"
)

// Line is a command parsed from a text line.
type Line struct {
	Name string
	Args []string
	Raw  string
}

// Parse splits a text line such as "visit gopher://start push" into a name
// and positional arguments. A leading "/" is accepted and dropped. It
// returns false for blank input.
func Parse(input string) (Line, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	trimmed = strings.TrimPrefix(trimmed, "/")
	raw := strings.TrimSpace(trimmed)
	if raw == "" {
		return Line{}, false
	}
	fields := strings.Fields(raw)
	args := []string{}
	if len(fields) > 1 {
		args = fields[1:]
	}
	return Line{
		Name: fields[0],
		Args: args,
		Raw:  raw,
	}, true
}
