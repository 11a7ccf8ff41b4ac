package session

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"
)

// ============================================================================
// Search
// ============================================================================

func TestSearch(t *testing.T) {
	s := NewFromBytes([]byte("abcABCabcabc aaaa"), WithChunkSize(4))
	defer s.Destroy()

	tests := []struct {
		name    string
		pattern string
		opts    SearchOptions
		want    []int64
	}{
		{"all", "abc", SearchOptions{}, []int64{0, 6, 9}},
		{"case insensitive", "ABC", SearchOptions{CaseInsensitive: true}, []int64{0, 3, 6, 9}},
		{"limit", "abc", SearchOptions{Limit: 2}, []int64{0, 6}},
		{"offset", "abc", SearchOptions{Offset: 1}, []int64{6, 9}},
		{"length", "abc", SearchOptions{Length: 9}, []int64{0, 6}},
		{"length clips match", "abc", SearchOptions{Length: 8}, []int64{0}},
		{"non-overlapping", "aa", SearchOptions{}, []int64{13, 15}},
		{"spans chunks", "cABCa", SearchOptions{}, []int64{2}},
		{"no match", "xyz", SearchOptions{}, nil},
		{"empty pattern", "", SearchOptions{}, nil},
		{"longer than range", "abc", SearchOptions{Offset: 16}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search([]byte(tt.pattern), tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSearchInvalidRange(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	defer s.Destroy()

	for _, opts := range []SearchOptions{{Offset: -1}, {Offset: 4}, {Length: -1}} {
		if _, err := s.Search([]byte("a"), opts); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("%+v: expected ErrInvalidRange, got %v", opts, err)
		}
	}
}

func TestSearchMaxLength(t *testing.T) {
	s := NewFromBytes([]byte("Hello World"))
	defer s.Destroy()

	got, err := s.Search([]byte("World"), SearchOptions{Offset: 1, Length: math.MaxInt64})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int64{6}) {
		t.Errorf("expected [6], got %v", got)
	}
}

func TestSearchEditedContent(t *testing.T) {
	s := NewFromBytes([]byte("needle in a haystack"), WithChunkSize(5))
	defer s.Destroy()

	s.Insert(12, []byte("needle "))
	s.Delete(0, 7)
	got, err := s.Search([]byte("needle"), SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int64{5}) {
		t.Errorf("expected [5], got %v", got)
	}
}

func TestSearchLarge(t *testing.T) {
	var doc bytes.Buffer
	var want []int64
	for i := 0; i < 200; i++ {
		doc.WriteString("....")
		if i%7 == 0 {
			want = append(want, int64(doc.Len()))
			doc.WriteString("MARK")
		}
	}
	s := NewFromBytes(doc.Bytes(), WithChunkSize(10))
	defer s.Destroy()

	got, err := s.Search([]byte("mark"), SearchOptions{CaseInsensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want) {
		t.Errorf("expected %d matches %v, got %d %v", len(want), want, len(got), got)
	}
}

// ============================================================================
// Replace
// ============================================================================

func TestReplaceAll(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		pattern     string
		replacement string
		opts        SearchOptions
		want        string
		count       int
	}{
		{"same length", "cat hat cat", "cat", "dog", SearchOptions{}, "dog hat dog", 2},
		{"shorter", "a--b--c", "--", "-", SearchOptions{}, "a-b-c", 2},
		{"longer", "x.y.z", ".", "::", SearchOptions{}, "x::y::z", 2},
		{"remove", "a1b1c1", "1", "", SearchOptions{}, "abc", 3},
		{"case insensitive", "Go go GO", "go", "Rust", SearchOptions{CaseInsensitive: true}, "Rust Rust Rust", 3},
		{"ranged", "aaaa", "a", "b", SearchOptions{Offset: 1, Length: 2}, "abba", 2},
		{"none", "abc", "z", "y", SearchOptions{}, "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFromBytes([]byte(tt.doc))
			defer s.Destroy()

			n, err := s.ReplaceAll([]byte(tt.pattern), []byte(tt.replacement), tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.count {
				t.Errorf("expected %d replacements, got %d", tt.count, n)
			}
			if got := content(t, s); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}

			if n > 0 {
				s.Undo()
				if got := content(t, s); got != tt.doc {
					t.Errorf("undo expected %q, got %q", tt.doc, got)
				}
			}
		})
	}
}

func TestReplaceOne(t *testing.T) {
	s := NewFromBytes([]byte("one two one two"))
	defer s.Destroy()

	replaced, next, err := s.ReplaceOne([]byte("one"), []byte("1"), SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !replaced || next != 1 {
		t.Errorf("expected replaced at next 1, got %v %d", replaced, next)
	}

	replaced, next, _ = s.ReplaceOne([]byte("one"), []byte("1"), SearchOptions{Offset: next})
	if !replaced || next != 7 {
		t.Errorf("expected replaced at next 7, got %v %d", replaced, next)
	}
	if got := content(t, s); got != "1 two 1 two" {
		t.Errorf("expected %q, got %q", "1 two 1 two", got)
	}

	replaced, _, err = s.ReplaceOne([]byte("one"), []byte("1"), SearchOptions{Offset: next})
	if err != nil || replaced {
		t.Errorf("expected no replacement, got %v %v", replaced, err)
	}
}

// ============================================================================
// Profile
// ============================================================================

func TestProfile(t *testing.T) {
	data := []byte{'a', 'a', 'b', 0, 0xff, 0xff, 0xff}
	s := NewFromBytes(data, WithChunkSize(2))
	defer s.Destroy()

	prof, err := s.Profile(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if prof['a'] != 2 || prof['b'] != 1 || prof[0] != 1 || prof[0xff] != 3 {
		t.Errorf("unexpected profile a=%d b=%d 0=%d ff=%d", prof['a'], prof['b'], prof[0], prof[0xff])
	}
	if prof.Total() != 7 || prof.ASCII() != 4 {
		t.Errorf("expected total 7 ascii 4, got %d %d", prof.Total(), prof.ASCII())
	}

	prof, _ = s.Profile(1, 2)
	if prof.Total() != 2 || prof['a'] != 1 || prof['b'] != 1 {
		t.Errorf("unexpected ranged profile total=%d", prof.Total())
	}

	prof, err = s.Profile(1, math.MaxInt64)
	if err != nil {
		t.Fatal(err)
	}
	if prof.Total() != 6 || prof['a'] != 1 {
		t.Errorf("expected profile to end of document, got total=%d", prof.Total())
	}

	if _, err := s.Profile(8, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}
