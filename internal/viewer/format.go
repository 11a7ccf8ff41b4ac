package viewer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Mode selects how bytes are displayed.
type Mode int

const (
	ModeHex Mode = iota
	ModeText
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeText {
		return "text"
	}
	return "hex"
}

// ParseMode parses "hex" or "text".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "hex":
		return ModeHex, nil
	case "text":
		return ModeText, nil
	}
	return ModeHex, fmt.Errorf("unknown viewer mode %q", s)
}

// hexRow formats one hex dump row: offset, hex bytes split in two
// halves, then the printable ASCII column.
func hexRow(offset int64, row []byte, perRow int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x  ", offset)
	for i := 0; i < perRow; i++ {
		if i == perRow/2 && perRow > 1 {
			b.WriteByte(' ')
		}
		if i < len(row) {
			fmt.Fprintf(&b, "%02x ", row[i])
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteString(" |")
	for _, c := range row {
		b.WriteByte(printable(c))
	}
	b.WriteByte('|')
	return b.String()
}

func printable(c byte) byte {
	if c >= 0x20 && c < 0x7f {
		return c
	}
	return '.'
}

// cell is one grapheme cluster placed on screen.
type cell struct {
	str   string
	width int
}

// textLine is one screen row of text mode. offset is relative to the
// start of the laid out data.
type textLine struct {
	offset int
	cells  []cell
}

// layoutText splits data into screen rows of at most width columns,
// breaking at newlines. Control characters and invalid UTF-8 show as '.'.
func layoutText(data []byte, width, maxRows int) []textLine {
	if width <= 0 || maxRows <= 0 {
		return nil
	}

	lines := []textLine{{offset: 0}}
	col := 0
	newLine := func(at int) bool {
		if len(lines) == maxRows {
			return false
		}
		lines = append(lines, textLine{offset: at})
		col = 0
		return true
	}

	gr := uniseg.NewGraphemes(string(data))
	for gr.Next() {
		start, end := gr.Positions()
		str := gr.Str()

		if str == "\n" || str == "\r\n" {
			if !newLine(end) {
				break
			}
			continue
		}

		w := gr.Width()
		switch {
		case str == "\t":
			str, w = " ", 1
		case !utf8.ValidString(str) || isControl(str):
			str, w = ".", 1
		case w < 1:
			w = 1
		}

		if col+w > width {
			if !newLine(start) {
				break
			}
		}
		cur := &lines[len(lines)-1]
		cur.cells = append(cur.cells, cell{str: str, width: w})
		col += w
	}
	return lines
}

func isControl(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r < 0x20 || r == 0x7f
}
