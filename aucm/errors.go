package aucm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFullyLogged is returned when compilation stopped after writing
// everything the user needs to the help writer, e.g. for a help token.
var ErrFullyLogged = errors.New("fully logged")

// Error is a compile error at a position of the source. Source is the text
// of the offending line.
type Error struct {
	Path    string
	Line    int // 1-based
	Col     int // 1-based, in bytes
	Len     int
	Message string
	Source  string
}

// Error formats the message followed by the source line and a caret span
// under the offending text.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s", e.Path, e.Line, e.Col, e.Message)
	if e.Source != "" {
		b.WriteString("\n  ")
		b.WriteString(strings.ReplaceAll(e.Source, "\t", " "))
		b.WriteString("\n  ")
		b.WriteString(strings.Repeat(" ", max(e.Col-1, 0)))
		b.WriteString(strings.Repeat("^", max(e.Len, 1)))
	}
	return b.String()
}
