// Package scope decides where a composition directive sits relative to the
// opening scope of the type it targets.
package scope

import "fmt"

// Placement is the syntactic position of a directive call.
type Placement int

const (
	// Unknown means the front-end did not determine the placement itself.
	Unknown Placement = iota
	// TopLevel is a direct statement of a type body or of the program, or
	// an equivalent call whose receiver is self or the target type.
	TopLevel
	// Nested is any other position: block bodies, arguments, conditionals,
	// assignments, chained calls.
	Nested
	// Ambiguous means the source could not be consulted.
	Ambiguous
)

func (p Placement) String() string {
	switch p {
	case Unknown:
		return "unknown"
	case TopLevel:
		return "top-level"
	case Nested:
		return "nested"
	case Ambiguous:
		return "ambiguous"
	}
	return fmt.Sprintf("placement(%d)", int(p))
}

// Site is the physical location of a directive call.
type Site struct {
	Unit      string
	Line      int
	Keyword   string
	Placement Placement
}

// At returns a site whose placement is left to the classifier.
func At(unit string, line int, keyword string) Site {
	return Site{Unit: unit, Line: line, Keyword: keyword}
}

// Known returns a site whose placement is a structural fact of the source.
func Known(unit string, line int, keyword string, p Placement) Site {
	return Site{Unit: unit, Line: line, Keyword: keyword, Placement: p}
}

func (s Site) String() string {
	if s.Unit == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", s.Unit, s.Line)
}
