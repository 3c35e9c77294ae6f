// Package render converts high-level markup into terminal bytes. Commands
// build their output with tags like {red}...{/}; the adapter honours the
// session's capabilities: no escape bytes ever leave here with ANSI off,
// chromatic segments always end with the reset sequence with ANSI on, and
// every line terminator is CRLF.
package render

import (
	"strings"

	"golang.org/x/text/width"
)

// Opts mirror the per-session output capabilities.
type Opts struct {
	EnableAnsi    bool
	EnableUnicode bool
	Width         int
	Height        int
	ColorSystem   string // "16" (default) or "256"
}

const (
	esc   = "\x1b["
	reset = "\x1b[0m"
)

var codes = map[string]string{
	"black":     "30",
	"red":       "31",
	"green":     "32",
	"yellow":    "33",
	"blue":      "34",
	"magenta":   "35",
	"cyan":      "36",
	"white":     "37",
	"bold":      "1",
	"dim":       "2",
	"underline": "4",
}

// Render expands markup and normalises the result for the wire.
func Render(draw string, opts Opts) string {
	var b strings.Builder
	b.Grow(len(draw) + 16)

	open := false // a chromatic segment is active
	for i := 0; i < len(draw); {
		if draw[i] == '{' {
			if end := strings.IndexByte(draw[i:], '}'); end > 0 {
				tag := draw[i+1 : i+end]
				if tag == "/" {
					if opts.EnableAnsi && open {
						b.WriteString(reset)
					}
					open = false
					i += end + 1
					continue
				}
				if code, ok := codes[tag]; ok {
					if opts.EnableAnsi {
						b.WriteString(esc + code + "m")
						open = true
					}
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(draw[i])
		i++
	}
	out := b.String()

	// Unterminated chromatic segment: close it so attributes never leak
	// into the next write.
	if opts.EnableAnsi && open {
		out += reset
	}

	if !opts.EnableUnicode {
		out = asciiFold(out)
	}
	return Normalize(out)
}

// Line renders draw and guarantees a single trailing CRLF.
func Line(draw string, opts Opts) string {
	out := Render(draw, opts)
	out = strings.TrimRight(out, "\r\n")
	return out + "\r\n"
}

// Normalize rewrites every line terminator to CRLF; no bare LF or CR
// remains.
func Normalize(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			b.WriteString("\r\n")
		case '\n':
			b.WriteString("\r\n")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// asciiFold replaces runes outside printable ASCII with '?' for sessions
// without unicode.
func asciiFold(s string) string {
	ok := true
	for _, r := range s {
		if r > 0x7e && r != '\r' && r != '\n' {
			ok = false
			break
		}
	}
	if ok {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0x7e || r == '\r' || r == '\n' {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// DisplayWidth computes terminal columns for a string, counting East Asian
// wide and fullwidth runes as two columns. The line editor uses this for
// cursor math when unicode is enabled.
func DisplayWidth(s string) int {
	cols := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			cols += 2
		default:
			cols++
		}
	}
	return cols
}
