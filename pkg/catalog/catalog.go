// Package catalog models the bibliographic API's documents and listings and
// builds the cache keys used to request them.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sternrassler/readabook/pkg/cache"
)

const (
	// BooksPath is the upstream collection path.
	BooksPath = "/books/"

	// SortPopular orders results by download count (upstream default).
	SortPopular = "popular"

	// DefaultMimeType restricts listings to documents with a plain-text format.
	DefaultMimeType = "text/plain"
)

// Text format keys in order of preference.
var TextFormats = []string{
	"text/plain; charset=utf-8",
	"text/plain; charset=us-ascii",
	"text/plain",
}

// CoverFormat is the format key of a document's cover image.
const CoverFormat = "image/jpeg"

// Person is an author, editor or translator.
type Person struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

// Document is one catalog record.
type Document struct {
	ID            int               `json:"id"`
	Title         string            `json:"title"`
	Authors       []Person          `json:"authors"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves"`
	Languages     []string          `json:"languages"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
}

// Listing is one page of catalog results.
type Listing struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []Document `json:"results"`
}

// Query selects a page of the catalog.
type Query struct {
	Search string
	Topic  string

	// Sort defaults to SortPopular.
	Sort string

	// Page is 1-based; zero means the first page.
	Page int

	// IDs restricts results to the given documents.
	IDs []int

	// MimeType filters by available format. Empty means no filter.
	MimeType string
}

// Values returns the upstream query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}

	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))

	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	if t := strings.TrimSpace(q.Topic); t != "" {
		v.Set("topic", t)
	}

	sort := q.Sort
	if sort == "" {
		sort = SortPopular
	}
	v.Set("sort", sort)

	if len(q.IDs) > 0 {
		v.Set("ids", JoinIDs(q.IDs))
	}
	if q.MimeType != "" {
		v.Set("mime_type", q.MimeType)
	}
	return v
}

// Key returns the request cache key of the query.
func (q Query) Key() cache.RequestKey {
	return cache.NewRequestKey(BooksPath, q.Values())
}

// DocumentKey returns the request cache key of a single document.
func DocumentKey(id int) cache.RequestKey {
	return cache.NewRequestKey(fmt.Sprintf("%s%d/", BooksPath, id), nil)
}

// JoinIDs formats ids as a comma-separated list.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// SelectTextFormat returns the preferred plain-text URL of a document.
func SelectTextFormat(formats map[string]string) (string, bool) {
	for _, f := range TextFormats {
		if u := formats[f]; u != "" {
			return u, true
		}
	}
	return "", false
}

// CoverURL returns the cover image URL, or "" when the document has none.
func CoverURL(doc *Document) string {
	if doc == nil {
		return ""
	}
	return doc.Formats[CoverFormat]
}

// DisplayAuthor formats "Last, First" as "First Last".
func DisplayAuthor(p *Person) string {
	if p == nil || p.Name == "" {
		return "Unknown Author"
	}
	parts := strings.Split(p.Name, ", ")
	if len(parts) == 2 {
		return parts[1] + " " + parts[0]
	}
	return p.Name
}

// FormatDownloadCount abbreviates large counts (1.2M, 3.4K).
func FormatDownloadCount(n int) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.Itoa(n)
	}
}

// Genre is a browsable topic.
type Genre struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Genres lists the browsable topics. ID is the upstream topic value.
var Genres = []Genre{
	{ID: "fiction", Label: "Fiction"},
	{ID: "adventure", Label: "Adventure"},
	{ID: "romance", Label: "Romance"},
	{ID: "mystery", Label: "Mystery"},
	{ID: "science fiction", Label: "Sci-Fi"},
	{ID: "horror", Label: "Horror"},
	{ID: "poetry", Label: "Poetry"},
	{ID: "history", Label: "History"},
	{ID: "philosophy", Label: "Philosophy"},
	{ID: "biography", Label: "Biography"},
	{ID: "money", Label: "Finance"},
	{ID: "humor", Label: "Humor"},
}

// ErrInvalidID is returned by ParseID for malformed identifiers.
var ErrInvalidID = errors.New("invalid document id")

var idPattern = regexp.MustCompile(`^\d+$`)

// ParseID parses a document identifier. Only positive decimal integers
// without sign or whitespace are accepted.
func ParseID(s string) (int, error) {
	if !idPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// ParseIDs parses a comma-separated id list, skipping blanks.
func ParseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
