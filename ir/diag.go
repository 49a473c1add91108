package ir

import "fmt"

// Pos locates an op in the kernel it was derived from.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Diagnostic is a located conversion error. An op that produces one fails to
// convert; the rest of the program is still attempted.
type Diagnostic struct {
	Pos Pos
	Msg string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Pos, d.Msg)
}
