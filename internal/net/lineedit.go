package net

import (
	"strings"
	"unicode/utf8"
)

// Telnet command bytes the editor strips or interprets.
const (
	telSE   = 240
	telSB   = 250
	telWILL = 251
	telWONT = 252
	telDO   = 253
	telDONT = 254
	telIAC  = 255

	optNAWS = 31
)

const historyMax = 64

// LineEditor is the pure byte-stream line discipline: raw client bytes in,
// completed lines and echo bytes out. It owns no socket and no lock, so it
// is driven entirely from the session's read goroutine and is trivially
// testable. With ANSI on it supports cursor movement, kill keys and
// history; with ANSI off it degrades to plain echo with destructive
// backspace.
type LineEditor struct {
	Prompt string
	Ansi   bool
	Mask   bool // echo '*' instead of the typed rune (password entry)

	buf    []rune
	cursor int

	history []string
	histPos int // len(history) means "editing a fresh line"
	stash   string

	// NAWS-reported client geometry; zero until the client negotiates.
	Width  int
	Height int

	state   int
	sub     []byte // telnet subnegotiation payload
	escSeq  []byte // partial ESC [ ... sequence
	pendCR  bool   // saw CR, swallow a following LF/NUL
}

const (
	stNormal = iota
	stEsc
	stCSI
	stIAC
	stIACOpt
	stIACSub
	stIACSubIAC
)

func NewLineEditor(prompt string, ansi bool) *LineEditor {
	return &LineEditor{Prompt: prompt, Ansi: ansi}
}

// Feed consumes raw bytes from the wire and returns any completed lines
// plus the echo bytes to send back. Partial escape and telnet sequences
// carry over to the next call.
func (e *LineEditor) Feed(data []byte) (lines []string, echo []byte) {
	var out []byte
	for _, b := range data {
		switch e.state {
		case stIAC:
			out = e.feedIAC(b, out)
		case stIACOpt:
			// WILL/WONT/DO/DONT option byte: consumed, not answered here.
			e.state = stNormal
		case stIACSub:
			if b == telIAC {
				e.state = stIACSubIAC
			} else {
				e.sub = append(e.sub, b)
			}
		case stIACSubIAC:
			if b == telSE {
				e.endSub()
				e.state = stNormal
			} else {
				e.sub = append(e.sub, b)
				e.state = stIACSub
			}
		case stEsc:
			if b == '[' {
				e.state = stCSI
				e.escSeq = e.escSeq[:0]
			} else {
				e.state = stNormal
			}
		case stCSI:
			if b >= 0x40 && b <= 0x7e {
				out = e.applyCSI(b, out)
				e.state = stNormal
			} else {
				e.escSeq = append(e.escSeq, b)
			}
		default:
			var line string
			var done bool
			line, done, out = e.feedNormal(b, out)
			if done {
				lines = append(lines, line)
			}
		}
	}
	return lines, out
}

func (e *LineEditor) feedIAC(b byte, out []byte) []byte {
	switch b {
	case telWILL, telWONT, telDO, telDONT:
		e.state = stIACOpt
	case telSB:
		e.sub = e.sub[:0]
		e.state = stIACSub
	case telIAC:
		// Escaped 0xFF data byte: drop, the protocol is text.
		e.state = stNormal
	default:
		e.state = stNormal
	}
	return out
}

// endSub interprets a completed subnegotiation. Only NAWS matters.
func (e *LineEditor) endSub() {
	if len(e.sub) == 5 && e.sub[0] == optNAWS {
		e.Width = int(e.sub[1])<<8 | int(e.sub[2])
		e.Height = int(e.sub[3])<<8 | int(e.sub[4])
	}
}

func (e *LineEditor) feedNormal(b byte, out []byte) (string, bool, []byte) {
	if e.pendCR {
		e.pendCR = false
		if b == '\n' || b == 0 {
			return "", false, out
		}
	}

	switch {
	case b == telIAC:
		e.state = stIAC
	case b == 0x1b:
		if e.Ansi {
			e.state = stEsc
		}
	case b == '\r', b == '\n':
		e.pendCR = b == '\r'
		line := string(e.buf)
		e.pushHistory(line)
		e.buf = e.buf[:0]
		e.cursor = 0
		out = append(out, '\r', '\n')
		return line, true, out
	case b == 0x7f || b == 0x08:
		out = e.backspace(out)
	case b == 0x01: // Ctrl-A
		e.cursor = 0
		out = e.redraw(out)
	case b == 0x05: // Ctrl-E
		e.cursor = len(e.buf)
		out = e.redraw(out)
	case b == 0x0b: // Ctrl-K
		e.buf = e.buf[:e.cursor]
		out = e.redraw(out)
	case b == 0x15: // Ctrl-U
		e.buf = e.buf[:0]
		e.cursor = 0
		out = e.redraw(out)
	case b >= 0x20 && b != telIAC:
		out = e.insert(rune(b), out)
	}
	return "", false, out
}

func (e *LineEditor) applyCSI(final byte, out []byte) []byte {
	switch final {
	case 'D': // left
		if e.cursor > 0 {
			e.cursor--
			out = append(out, 0x1b, '[', 'D')
		}
	case 'C': // right
		if e.cursor < len(e.buf) {
			e.cursor++
			out = append(out, 0x1b, '[', 'C')
		}
	case 'A': // up, older history
		if e.histPos > 0 {
			if e.histPos == len(e.history) {
				e.stash = string(e.buf)
			}
			e.histPos--
			e.setLine(e.history[e.histPos])
			out = e.redraw(out)
		}
	case 'B': // down, newer history
		if e.histPos < len(e.history) {
			e.histPos++
			if e.histPos == len(e.history) {
				e.setLine(e.stash)
			} else {
				e.setLine(e.history[e.histPos])
			}
			out = e.redraw(out)
		}
	case 'H': // home
		e.cursor = 0
		out = e.redraw(out)
	case 'F': // end
		e.cursor = len(e.buf)
		out = e.redraw(out)
	case '~': // ESC [ 1~ home, ESC [ 4~ end
		switch string(e.escSeq) {
		case "1":
			e.cursor = 0
			out = e.redraw(out)
		case "4":
			e.cursor = len(e.buf)
			out = e.redraw(out)
		}
	}
	return out
}

func (e *LineEditor) insert(r rune, out []byte) []byte {
	if e.cursor == len(e.buf) {
		e.buf = append(e.buf, r)
		e.cursor++
		if e.Mask {
			return append(out, '*')
		}
		return utf8.AppendRune(out, r)
	}
	e.buf = append(e.buf, 0)
	copy(e.buf[e.cursor+1:], e.buf[e.cursor:])
	e.buf[e.cursor] = r
	e.cursor++
	return e.redraw(out)
}

func (e *LineEditor) backspace(out []byte) []byte {
	if e.cursor == 0 {
		return out
	}
	if e.cursor == len(e.buf) {
		e.buf = e.buf[:len(e.buf)-1]
		e.cursor--
		return append(out, '\b', ' ', '\b')
	}
	copy(e.buf[e.cursor-1:], e.buf[e.cursor:])
	e.buf = e.buf[:len(e.buf)-1]
	e.cursor--
	return e.redraw(out)
}

// redraw repaints the whole edit line and repositions the cursor. Without
// ANSI there is no way to repaint, so mid-line edits simply do not echo.
func (e *LineEditor) redraw(out []byte) []byte {
	if !e.Ansi {
		return out
	}
	out = append(out, '\r')
	out = append(out, 0x1b, '[', 'K')
	out = append(out, e.Prompt...)
	if e.Mask {
		for range e.buf {
			out = append(out, '*')
		}
	} else {
		out = append(out, string(e.buf)...)
	}
	if back := len(e.buf) - e.cursor; back > 0 {
		for i := 0; i < back; i++ {
			out = append(out, 0x1b, '[', 'D')
		}
	}
	return out
}

// RedrawBytes repaints the prompt and current edit line. The session calls
// this after an asynchronous message interrupted the line.
func (e *LineEditor) RedrawBytes() []byte {
	if !e.Ansi {
		if e.Mask {
			return []byte(e.Prompt + strings.Repeat("*", len(e.buf)))
		}
		return []byte(e.Prompt + string(e.buf))
	}
	return e.redraw(nil)
}

func (e *LineEditor) setLine(s string) {
	e.buf = append(e.buf[:0], []rune(s)...)
	e.cursor = len(e.buf)
}

// pushHistory records a submitted line, skipping blanks and adjacent
// duplicates, and resets the browse position.
func (e *LineEditor) pushHistory(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed != "" && (len(e.history) == 0 || e.history[len(e.history)-1] != trimmed) {
		e.history = append(e.history, trimmed)
		if len(e.history) > historyMax {
			e.history = e.history[1:]
		}
	}
	e.histPos = len(e.history)
	e.stash = ""
}

// Line returns the current partial line; the login prompt reads this for
// password masking decisions.
func (e *LineEditor) Line() string { return string(e.buf) }
