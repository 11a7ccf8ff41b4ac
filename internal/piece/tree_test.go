package piece

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand"
	"testing"
)

// memStores is a Fetcher over two in-memory stores.
type memStores struct {
	original []byte
	added    []byte
}

func (m *memStores) Fetch(kind Kind, p []byte, off int64) error {
	store := m.original
	if kind == Added {
		store = m.added
	}
	if off < 0 || off+int64(len(p)) > int64(len(store)) {
		return io.ErrUnexpectedEOF
	}
	copy(p, store[off:])
	return nil
}

// add appends data to the add store and returns the piece covering it.
func (m *memStores) add(data []byte) Piece {
	p := Piece{Kind: Added, Offset: int64(len(m.added)), Length: int64(len(data))}
	m.added = append(m.added, data...)
	return p
}

func readAll(t *testing.T, tr Tree, m *memStores) []byte {
	t.Helper()
	buf := make([]byte, tr.Len())
	n, err := tr.ReadAt(buf, 0, m)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		t.Fatalf("ReadAt: %v", err)
	}
	return buf[:n]
}

// ============================================================================
// Basic Operations
// ============================================================================

func TestNew(t *testing.T) {
	tr := New()
	if tr.Len() != 0 || !tr.IsEmpty() {
		t.Errorf("expected empty tree, got len %d", tr.Len())
	}
	if tr.Height() != 0 || tr.PieceCount() != 0 {
		t.Errorf("expected no nodes, got height %d count %d", tr.Height(), tr.PieceCount())
	}
	if _, _, ok := tr.Find(0); ok {
		t.Error("Find on empty tree should fail")
	}
}

func TestFromPiece(t *testing.T) {
	m := &memStores{original: []byte("hello world")}
	tr := FromPiece(Piece{Kind: Original, Length: 11})

	if got := string(readAll(t, tr, m)); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
	if FromPiece(Piece{Kind: Original}).Len() != 0 {
		t.Error("empty piece should give empty tree")
	}
}

func TestFromPiecesCoalesces(t *testing.T) {
	tr := FromPieces([]Piece{
		{Kind: Original, Offset: 0, Length: 3},
		{Kind: Original, Offset: 3, Length: 4},
		{Kind: Added, Offset: 0, Length: 0},
		{Kind: Added, Offset: 0, Length: 2},
	})
	if tr.PieceCount() != 2 {
		t.Errorf("expected 2 pieces after coalescing, got %d: %v", tr.PieceCount(), tr.Pieces())
	}
	if tr.Len() != 9 {
		t.Errorf("expected len 9, got %d", tr.Len())
	}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name     string
		offset   int64
		text     string
		expected string
	}{
		{"start", 0, ">>", ">>Hello World"},
		{"middle", 5, ",", "Hello, World"},
		{"end", 11, "!", "Hello World!"},
		{"past end appends", 50, "?", "Hello World?"},
		{"binary", 5, "\x00\x01", "Hello\x00\x01 World"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &memStores{original: []byte("Hello World")}
			tr := FromPiece(Piece{Kind: Original, Length: 11})
			tr = tr.Insert(tt.offset, m.add([]byte(tt.text)))

			if got := string(readAll(t, tr, m)); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		start, end int64
		expected   string
	}{
		{"prefix", 0, 6, "World"},
		{"middle", 5, 6, "HelloWorld"},
		{"suffix", 5, 11, "Hello"},
		{"all", 0, 11, ""},
		{"clamped", 8, 100, "Hello Wo"},
		{"empty range", 4, 4, "Hello World"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &memStores{original: []byte("Hello World")}
			tr := FromPiece(Piece{Kind: Original, Length: 11}).Delete(tt.start, tt.end)

			if got := string(readAll(t, tr, m)); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestOverwrite(t *testing.T) {
	m := &memStores{original: []byte("Hello Weird!!!!")}
	tr := FromPiece(Piece{Kind: Original, Length: 15})
	tr = tr.Overwrite(7, m.add([]byte("orl")))

	if got := string(readAll(t, tr, m)); got != "Hello World!!!!" {
		t.Errorf("expected %q, got %q", "Hello World!!!!", got)
	}
	if tr.Len() != 15 {
		t.Errorf("overwrite changed length to %d", tr.Len())
	}
}

func TestImmutability(t *testing.T) {
	m := &memStores{original: []byte("abcdef")}
	base := FromPiece(Piece{Kind: Original, Length: 6})
	edited := base.Insert(3, m.add([]byte("XYZ"))).Delete(0, 1)

	if got := string(readAll(t, base, m)); got != "abcdef" {
		t.Errorf("original tree changed: %q", got)
	}
	if got := string(readAll(t, edited, m)); got != "bcXYZdef" {
		t.Errorf("edited tree = %q", got)
	}
}

func TestSplitConcat(t *testing.T) {
	m := &memStores{original: []byte("0123456789")}
	tr := FromPiece(Piece{Kind: Original, Length: 10})
	tr = tr.Insert(5, m.add([]byte("abc")))

	for off := int64(0); off <= tr.Len(); off++ {
		l, r := tr.Split(off)
		if l.Len() != off || r.Len() != tr.Len()-off {
			t.Fatalf("split at %d gave lengths %d/%d", off, l.Len(), r.Len())
		}
		if got, want := string(readAll(t, l.Concat(r), m)), "01234abc56789"; got != want {
			t.Fatalf("split/concat at %d = %q, want %q", off, got, want)
		}
	}
}

func TestFind(t *testing.T) {
	m := &memStores{original: []byte("0123456789")}
	tr := FromPiece(Piece{Kind: Original, Length: 10}).Insert(4, m.add([]byte("ab")))

	p, within, ok := tr.Find(5)
	if !ok || p.Kind != Added || within != 1 {
		t.Errorf("Find(5) = %v, %d, %v", p, within, ok)
	}
	p, within, ok = tr.Find(6)
	if !ok || p.Kind != Original || p.Offset != 4 || within != 0 {
		t.Errorf("Find(6) = %v, %d, %v", p, within, ok)
	}
	if _, _, ok := tr.Find(12); ok {
		t.Error("Find past end should fail")
	}
}

func TestWalkClips(t *testing.T) {
	m := &memStores{original: []byte("0123456789")}
	tr := FromPiece(Piece{Kind: Original, Length: 10}).Insert(5, m.add([]byte("XY")))

	var got []Piece
	var offsets []int64
	tr.Walk(3, 8, func(p Piece, at int64) bool {
		got = append(got, p)
		offsets = append(offsets, at)
		return true
	})

	want := []Piece{
		{Kind: Original, Offset: 3, Length: 2},
		{Kind: Added, Offset: 0, Length: 2},
		{Kind: Original, Offset: 5, Length: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d pieces, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("piece %d = %v, want %v", i, got[i], want[i])
		}
	}
	if offsets[0] != 3 || offsets[1] != 5 || offsets[2] != 7 {
		t.Errorf("unexpected offsets %v", offsets)
	}
}

func TestReadAtSemantics(t *testing.T) {
	m := &memStores{original: []byte("abcdef")}
	tr := FromPiece(Piece{Kind: Original, Length: 6})

	buf := make([]byte, 4)
	n, err := tr.ReadAt(buf, 4, m)
	if n != 2 || !errors.Is(err, io.EOF) || string(buf[:n]) != "ef" {
		t.Errorf("short read = %d, %v, %q", n, err, buf[:n])
	}
	if _, err := tr.ReadAt(buf, 6, m); !errors.Is(err, io.EOF) {
		t.Errorf("read at end: expected EOF, got %v", err)
	}
	if _, err := tr.ReadAt(buf, -1, m); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("expected ErrNegativeOffset, got %v", err)
	}
	if n, err := tr.ReadAt(nil, 2, m); n != 0 || err != nil {
		t.Errorf("zero-length read = %d, %v", n, err)
	}
}

func TestReadAtFetchError(t *testing.T) {
	boom := errors.New("boom")
	tr := FromPiece(Piece{Kind: Original, Length: 4})
	_, err := tr.ReadAt(make([]byte, 4), 0, FetcherFunc(func(Kind, []byte, int64) error {
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

// ============================================================================
// Model Comparison
// ============================================================================

func TestRandomEditsMatchModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	orig := make([]byte, 4096)
	rng.Read(orig)

	m := &memStores{original: orig}
	tr := FromPiece(Piece{Kind: Original, Length: int64(len(orig))})
	model := append([]byte(nil), orig...)

	for i := 0; i < 2000; i++ {
		size := int64(len(model))
		switch op := rng.Intn(3); {
		case op == 0 || size == 0:
			off := rng.Int63n(size + 1)
			data := make([]byte, 1+rng.Intn(16))
			rng.Read(data)
			tr = tr.Insert(off, m.add(data))
			model = append(model[:off], append(append([]byte(nil), data...), model[off:]...)...)
		case op == 1:
			off := rng.Int63n(size)
			n := 1 + rng.Int63n(min(16, size-off))
			tr = tr.Delete(off, off+n)
			model = append(model[:off], model[off+n:]...)
		default:
			off := rng.Int63n(size)
			n := 1 + rng.Int63n(min(16, size-off))
			data := make([]byte, n)
			rng.Read(data)
			tr = tr.Overwrite(off, m.add(data))
			copy(model[off:], data)
		}

		if tr.Len() != int64(len(model)) {
			t.Fatalf("step %d: len %d, model %d", i, tr.Len(), len(model))
		}
	}

	if got := readAll(t, tr, m); !bytes.Equal(got, model) {
		t.Fatal("tree content diverged from model")
	}

	// Random windows must match too.
	for i := 0; i < 200; i++ {
		off := rng.Int63n(int64(len(model)))
		n := rng.Intn(300)
		buf := make([]byte, n)
		got, _ := tr.ReadAt(buf, off, m)
		want := model[off:min(off+int64(n), int64(len(model)))]
		if !bytes.Equal(buf[:got], want) {
			t.Fatalf("window %d+%d mismatch", off, n)
		}
	}

	// Every internal node has two or more children, so height is bounded
	// by log2 of the leaf count plus one.
	maxHeight := int(math.Log2(float64(tr.PieceCount())))+2
	if tr.Height() > maxHeight {
		t.Errorf("tree height %d exceeds bound %d for %d pieces", tr.Height(), maxHeight, tr.PieceCount())
	}
}

func TestManyAppendsStayBalanced(t *testing.T) {
	m := &memStores{}
	tr := New()
	for i := 0; i < 5000; i++ {
		// Non-adjacent pieces so nothing coalesces.
		m.added = append(m.added, 0)
		tr = tr.Insert(tr.Len(), m.add([]byte{byte(i)}))
	}
	if tr.PieceCount() != 5000 {
		t.Fatalf("expected 5000 pieces, got %d", tr.PieceCount())
	}
	if tr.Height() > 14 {
		t.Errorf("height %d too large for 5000 pieces", tr.Height())
	}
}
