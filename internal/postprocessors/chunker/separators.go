package chunker

import "strings"

// placement controls which piece keeps the separator text after a cut.
type placement int

const (
	// keepTrailing appends the separator to the piece before it.
	keepTrailing placement = iota

	// keepLeading prepends the separator to the piece after it.
	// Used for headers so "Chapter 3" starts its own piece.
	keepLeading
)

// separator is one level of the split hierarchy.
type separator struct {
	text  string
	place placement
}

// defaultSeparators is ordered from coarsest to finest.
var defaultSeparators = []separator{
	{text: "\n\n\n", place: keepTrailing},
	{text: "\n\n", place: keepTrailing},
	{text: "\nChapter ", place: keepLeading},
	{text: "\nCHAPTER ", place: keepLeading},
	{text: "\nSection ", place: keepLeading},
	{text: "\nPart ", place: keepLeading},
	{text: "\n", place: keepTrailing},
	{text: ". ", place: keepTrailing},
	{text: "! ", place: keepTrailing},
	{text: "? ", place: keepTrailing},
	{text: " ", place: keepTrailing},
	{text: "", place: keepTrailing},
}

// pickSeparator returns the first separator present in text and the finer
// separators after it. The empty separator always matches.
func pickSeparator(text string, seps []separator) (separator, []separator) {
	for i, sep := range seps {
		if sep.text == "" || strings.Contains(text, sep.text) {
			return sep, seps[i+1:]
		}
	}
	return separator{}, nil
}

// cut splits text on the separator. Joining the pieces restores text exactly.
func (sep separator) cut(text string) []string {
	if sep.text == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep.text)
	pieces := make([]string, 0, len(parts))

	for i, part := range parts {
		switch sep.place {
		case keepLeading:
			if i > 0 {
				part = sep.text + part
			}
		default:
			if i < len(parts)-1 {
				part += sep.text
			}
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}

	return pieces
}
