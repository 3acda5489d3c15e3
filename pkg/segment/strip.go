package segment

import "strings"

// StartMarkers open the body of a Project Gutenberg text, in priority order.
var StartMarkers = []string{
	"*** START OF THE PROJECT GUTENBERG",
	"*** START OF THIS PROJECT GUTENBERG",
	"***START OF THE PROJECT GUTENBERG",
}

// EndMarkers close the body of a Project Gutenberg text, in priority order.
var EndMarkers = []string{
	"*** END OF THE PROJECT GUTENBERG",
	"*** END OF THIS PROJECT GUTENBERG",
	"***END OF THE PROJECT GUTENBERG",
	"End of the Project Gutenberg",
	"End of Project Gutenberg",
}

// StripBoilerplate removes the distribution header and footer and trims
// surrounding whitespace.
//
// The first start marker found (in StartMarkers order) discards everything up
// to and including its line; a marker on the final line leaves nothing. The
// first end marker found in what remains cuts the text at the marker.
// Texts without markers are only trimmed.
func StripBoilerplate(raw string) string {
	text := raw

	for _, marker := range StartMarkers {
		idx := strings.Index(text, marker)
		if idx == -1 {
			continue
		}
		nl := strings.IndexByte(text[idx:], '\n')
		if nl == -1 {
			text = ""
		} else {
			text = text[idx+nl+1:]
		}
		break
	}

	for _, marker := range EndMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			text = text[:idx]
			break
		}
	}

	return strings.TrimSpace(text)
}
