package schema

import (
	"strings"
	"unicode"
)

// NormalizeVisitMode validates a visit mode. Link disposition names
// ("tab", "backgroundTab", "foreground-tab", "background-tab") are accepted
// as aliases.
func NormalizeVisitMode(value string) (VisitMode, error) {
	switch strings.TrimSpace(value) {
	case "", string(VisitPush):
		return VisitPush, nil
	case string(VisitReplace):
		return VisitReplace, nil
	case string(VisitNewTab), "tab", "foreground-tab", "new-window":
		return VisitNewTab, nil
	case string(VisitNewBackgroundTab), "backgroundTab", "background-tab":
		return VisitNewBackgroundTab, nil
	default:
		return "", ErrInvalidMode
	}
}

// ValidateWindowID ensures a window id is non-empty printable text without
// surrounding whitespace or path separators.
func ValidateWindowID(id WindowID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidWindow
	}
	for _, r := range raw {
		if r == '/' || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return ErrInvalidWindow
		}
	}
	return nil
}

// DispositionVisitMode maps a link disposition onto a visit mode. A
// foreground-tab disposition raised from a known tab navigates that tab.
func DispositionVisitMode(value string, at TabID) (VisitMode, error) {
	if at != "" && strings.TrimSpace(value) == "foreground-tab" {
		return VisitPush, nil
	}
	return NormalizeVisitMode(value)
}
