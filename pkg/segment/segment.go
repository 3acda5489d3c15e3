// Package segment turns raw Project Gutenberg plain text into an ordered list
// of titled chapters.
//
// Segmentation runs in three steps:
//
//  1. StripBoilerplate removes the distribution header and footer.
//  2. Heading detection tries the patterns in HeadingPatterns in order and
//     uses the first with at least MinHeadingMatches line-anchored matches.
//  3. Without usable headings, paragraphs are packed into "Section k" chunks
//     of roughly Config.SectionChars characters.
//
// Segmentation is pure and deterministic: the same input always yields the
// same result, so callers may re-segment cached raw text on every request.
package segment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultSectionChars is the fallback section size in characters.
	DefaultSectionChars = 5000

	// MinHeadingMatches is the number of matches a heading pattern needs
	// before it is used to split the text.
	MinHeadingMatches = 2

	// PrefaceTitle names text that precedes the first heading.
	PrefaceTitle = "Preface"

	// StrategySections marks results produced by the paragraph fallback.
	StrategySections = "sections"

	// StrategyEmpty marks results with no content.
	StrategyEmpty = "empty"
)

var (
	segmentStrategy = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "readabook_segment_strategy_total",
			Help: "Total number of segmentations by strategy",
		},
		[]string{"strategy"},
	)

	segmentChapters = promauto.With(metrics.Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readabook_segment_chapters",
			Help:    "Number of chapters produced per segmentation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		},
	)
)

// HeadingPattern is a named chapter heading matcher.
type HeadingPattern struct {
	Name string
	re   *regexp.Regexp
}

func headingPattern(name, flags, word string) HeadingPattern {
	return HeadingPattern{
		Name: name,
		re:   regexp.MustCompile(flags + `^(` + word + `\s+[IVXLCDM\d]+\.?[^\r\n]*)`),
	}
}

// HeadingPatterns are tried in order; the first with enough matches wins.
var HeadingPatterns = []HeadingPattern{
	headingPattern("CHAPTER", "(?im)", "CHAPTER"),
	headingPattern("Chapter", "(?m)", "Chapter"),
	headingPattern("BOOK", "(?im)", "BOOK"),
	headingPattern("PART", "(?im)", "PART"),
	headingPattern("ACT", "(?im)", "ACT"),
	headingPattern("SCENE", "(?im)", "SCENE"),
}

var (
	// headingFragment recognizes a split fragment that is itself a heading.
	headingFragment = regexp.MustCompile(`(?i)^(CHAPTER|BOOK|PART|ACT|SCENE)\s+`)
	lineBreaks      = regexp.MustCompile(`\r?\n`)
	blankLine       = regexp.MustCompile(`\n\s*\n`)
)

// Chapter is one titled unit of a document's text.
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ParseResult is the outcome of segmenting a text.
type ParseResult struct {
	Chapters      []Chapter `json:"chapters"`
	TotalChapters int       `json:"totalChapters"`

	// Strategy is the heading pattern name, StrategySections or StrategyEmpty.
	Strategy string `json:"strategy"`
}

// Chapter returns the chapter at index i.
func (r *ParseResult) Chapter(i int) (Chapter, bool) {
	if i < 0 || i >= len(r.Chapters) {
		return Chapter{}, false
	}
	return r.Chapters[i], true
}

// Clamp maps a stored reading position onto a valid chapter index.
// It returns 0 for an empty result.
func (r *ParseResult) Clamp(i int) int {
	if i < 0 || len(r.Chapters) == 0 {
		return 0
	}
	if i >= len(r.Chapters) {
		return len(r.Chapters) - 1
	}
	return i
}

// Config holds segmenter configuration.
type Config struct {
	// SectionChars is the fallback section size. Zero means DefaultSectionChars.
	SectionChars int
}

// Segmenter splits texts into chapters.
type Segmenter struct {
	sectionChars int
}

// New creates a segmenter.
func New(cfg Config) *Segmenter {
	n := cfg.SectionChars
	if n <= 0 {
		n = DefaultSectionChars
	}
	return &Segmenter{sectionChars: n}
}

// Default returns a segmenter with default configuration.
func Default() *Segmenter {
	return New(Config{})
}

// Segment segments raw using the default configuration.
func Segment(raw string) *ParseResult {
	return Default().Segment(raw)
}

// Segment strips boilerplate from raw and splits the body into chapters.
func (s *Segmenter) Segment(raw string) *ParseResult {
	text := StripBoilerplate(raw)

	var (
		chapters []Chapter
		strategy string
	)

	if p, ok := detectPattern(text); ok {
		chapters = splitByHeadings(text, p.re)
		strategy = p.Name
	}

	if len(chapters) == 0 {
		chapters = s.splitBySections(text)
		strategy = StrategySections
	}

	if len(chapters) == 0 {
		chapters = []Chapter{}
		strategy = StrategyEmpty
	}

	segmentStrategy.WithLabelValues(strategy).Inc()
	segmentChapters.Observe(float64(len(chapters)))

	return &ParseResult{
		Chapters:      chapters,
		TotalChapters: len(chapters),
		Strategy:      strategy,
	}
}

func detectPattern(text string) (HeadingPattern, bool) {
	for _, p := range HeadingPatterns {
		if len(p.re.FindAllStringIndex(text, MinHeadingMatches)) >= MinHeadingMatches {
			return p, true
		}
	}
	return HeadingPattern{}, false
}

// splitFragments returns the text between matches and the matches themselves,
// in order, with empty fragments removed.
func splitFragments(text string, re *regexp.Regexp) []string {
	var parts []string
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			parts = append(parts, text[last:loc[0]])
		}
		if loc[1] > loc[0] {
			parts = append(parts, text[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}

func splitByHeadings(text string, re *regexp.Regexp) []Chapter {
	parts := splitFragments(text, re)

	var chapters []Chapter
	for i := 0; i < len(parts); i++ {
		part := strings.TrimSpace(parts[i])
		if part == "" {
			continue
		}

		switch {
		case headingFragment.MatchString(part):
			ch := Chapter{Title: headingTitle(part)}
			if i+1 < len(parts) {
				ch.Content = strings.TrimSpace(parts[i+1])
				i++
			}
			chapters = append(chapters, ch)
		case len(chapters) == 0:
			chapters = append(chapters, Chapter{Title: PrefaceTitle, Content: part})
		}
	}
	return chapters
}

func headingTitle(part string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(part, " "))
}

func (s *Segmenter) splitBySections(text string) []Chapter {
	var (
		chapters []Chapter
		content  strings.Builder
		size     int // runes in content
	)
	section := 1

	for _, para := range blankLine.Split(text, -1) {
		if size+utf8.RuneCountInString(para) > s.sectionChars && size > 0 {
			chapters = append(chapters, Chapter{Title: sectionTitle(section), Content: content.String()})
			section++
			content.Reset()
			size = 0
		}

		trimmed := strings.TrimSpace(para)
		if size > 0 {
			content.WriteString("\n\n")
			size += 2
		}
		content.WriteString(trimmed)
		size += utf8.RuneCountInString(trimmed)
	}

	if size > 0 {
		chapters = append(chapters, Chapter{Title: sectionTitle(section), Content: content.String()})
	}
	return chapters
}

func sectionTitle(n int) string {
	return fmt.Sprintf("Section %d", n)
}
