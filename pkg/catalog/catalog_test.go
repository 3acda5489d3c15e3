package catalog

import (
	"errors"
	"testing"
)

func TestQuery_Key(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "defaults",
			q:    Query{},
			want: "/books/?sort=popular",
		},
		{
			name: "topic trimmed, page 1 implicit",
			q:    Query{Topic: "  poetry ", Page: 1},
			want: "/books/?sort=popular&topic=poetry",
		},
		{
			name: "page 2 and search",
			q:    Query{Search: "austen", Page: 2},
			want: "/books/?page=2&search=austen&sort=popular",
		},
		{
			name: "ids and mime type",
			q:    Query{IDs: []int{84, 1342}, MimeType: DefaultMimeType},
			want: "/books/?ids=84%2C1342&mime_type=text%2Fplain&sort=popular",
		},
		{
			name: "explicit sort",
			q:    Query{Sort: "ascending"},
			want: "/books/?sort=ascending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Key().String(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuery_EquivalentQueriesShareKey(t *testing.T) {
	a := Query{Topic: "poetry"}
	b := Query{Topic: "poetry ", Page: 1, Sort: SortPopular}

	if a.Key().String() != b.Key().String() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}

func TestDocumentKey(t *testing.T) {
	if got, want := DocumentKey(1342).String(), "/books/1342/"; got != want {
		t.Errorf("DocumentKey() = %q, want %q", got, want)
	}
}

func TestSelectTextFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats map[string]string
		want    string
		wantOK  bool
	}{
		{
			name: "utf-8 preferred",
			formats: map[string]string{
				"text/plain":                   "plain",
				"text/plain; charset=us-ascii": "ascii",
				"text/plain; charset=utf-8":    "utf8",
			},
			want:   "utf8",
			wantOK: true,
		},
		{
			name: "ascii over generic",
			formats: map[string]string{
				"text/plain":                   "plain",
				"text/plain; charset=us-ascii": "ascii",
			},
			want:   "ascii",
			wantOK: true,
		},
		{
			name:    "generic only",
			formats: map[string]string{"text/plain": "plain", "image/jpeg": "cover"},
			want:    "plain",
			wantOK:  true,
		},
		{
			name:    "html only",
			formats: map[string]string{"text/html": "html"},
			wantOK:  false,
		},
		{
			name:   "nil formats",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectTextFormat(tt.formats)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("SelectTextFormat() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCoverURL(t *testing.T) {
	doc := &Document{Formats: map[string]string{CoverFormat: "https://example.org/cover.jpg"}}
	if got := CoverURL(doc); got != "https://example.org/cover.jpg" {
		t.Errorf("CoverURL() = %q", got)
	}
	if got := CoverURL(&Document{}); got != "" {
		t.Errorf("CoverURL() without cover = %q", got)
	}
	if got := CoverURL(nil); got != "" {
		t.Errorf("CoverURL(nil) = %q", got)
	}
}

func TestDisplayAuthor(t *testing.T) {
	tests := []struct {
		in   *Person
		want string
	}{
		{&Person{Name: "Austen, Jane"}, "Jane Austen"},
		{&Person{Name: "Homer"}, "Homer"},
		{&Person{Name: "Doe, John, Jr."}, "Doe, John, Jr."},
		{&Person{}, "Unknown Author"},
		{nil, "Unknown Author"},
	}

	for _, tt := range tests {
		if got := DisplayAuthor(tt.in); got != tt.want {
			t.Errorf("DisplayAuthor(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDownloadCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{3460, "3.5K"},
		{1_234_567, "1.2M"},
	}

	for _, tt := range tests {
		if got := FormatDownloadCount(tt.in); got != tt.want {
			t.Errorf("FormatDownloadCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1342", 1342, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"12a", 0, true},
		{" 12", 0, true},
		{"", 0, true},
		{"99999999999999999999999", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("ParseID(%q) error = %v, want ErrInvalidID", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseID(%q) = %d, %v, want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("84, 1342,,11")
	if err != nil {
		t.Fatalf("ParseIDs() failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 84 || ids[1] != 1342 || ids[2] != 11 {
		t.Errorf("ParseIDs() = %v", ids)
	}

	if _, err := ParseIDs("1,x"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}

	ids, err = ParseIDs("")
	if err != nil || len(ids) != 0 {
		t.Errorf("ParseIDs(\"\") = %v, %v", ids, err)
	}
}
