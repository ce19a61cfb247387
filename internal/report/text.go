package report

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// ASCII sanitation
// =============================================================================

// cp1252Replacements maps stray Windows-1252 bytes 0x80-0x9F to ASCII.
// An empty entry drops the byte.
var cp1252Replacements = [32]string{
	"EUR", "", ",", "f", "\"", "...", "+", "++",
	"^", "%", "S", "<", "OE", "", "Z", "",
	"", "'", "'", "\"", "\"", "*", "-", "--",
	"~", "(TM)", "s", ">", "oe", "", "z", "Y",
}

var unicodeReplacements = map[rune]string{
	' ': " ",
	'°': "deg",
	'‘': "'",
	'’': "'",
	'′': "'",
	'“': "\"",
	'”': "\"",
	'″': "\"",
	'‐': "-",
	'‑': "-",
	'‒': "-",
	'–': "-",
	'—': "--",
	'•': "*",
	'…': "...",
	'™': "(TM)",
}

// SanitizeASCII reduces text to printable ASCII plus newline and tab.
// Typographic punctuation is replaced with ASCII equivalents, accents are
// stripped, and anything else becomes '?'. Carriage returns are dropped.
func SanitizeASCII(text string) string {
	if text == "" {
		return ""
	}

	// Folding would turn stray CP1252 bytes into U+FFFD, so only valid input is folded.
	if utf8.ValidString(text) {
		if folded, _, err := transform.String(accentFolder(), text); err == nil {
			text = folded
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 || c == '\n' || c == '\t' {
				b.WriteByte(c)
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size <= 1 {
			if c >= 0x80 && c <= 0x9F {
				b.WriteString(cp1252Replacements[c-0x80])
			} else {
				b.WriteByte('?')
			}
			i++
			continue
		}

		if rep, ok := unicodeReplacements[r]; ok {
			b.WriteString(rep)
		} else {
			b.WriteByte('?')
		}
		i += size
	}
	return b.String()
}

// accentFolder decomposes characters and removes combining marks, so "é"
// becomes "e" before the ASCII pass.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// =============================================================================
// LaTeX escaping
// =============================================================================

// Line breaks inside running text and inside single-line constructs such as
// table cells and headings, where \\ would end the row.
const (
	paragraphBreak = "\\\\\n"
	inlineBreak    = " "
)

func writeEscaped(b *strings.Builder, c byte, newline string) {
	switch c {
	case '\\':
		b.WriteString(`\textbackslash{}`)
	case '{':
		b.WriteString(`\{`)
	case '}':
		b.WriteString(`\}`)
	case '#':
		b.WriteString(`\#`)
	case '$':
		b.WriteString(`\$`)
	case '%':
		b.WriteString(`\%`)
	case '&':
		b.WriteString(`\&`)
	case '_':
		b.WriteString(`\_`)
	case '^':
		b.WriteString(`\textasciicircum{}`)
	case '~':
		b.WriteString(`\textasciitilde{}`)
	case '\n':
		b.WriteString(newline)
	default:
		if c >= 0x20 {
			b.WriteByte(c)
		}
	}
}

// EscapeLaTeX escapes the LaTeX special characters in text.
// Newlines become forced line breaks and control characters are dropped.
func EscapeLaTeX(text string) string {
	return escapeLaTeX(text, paragraphBreak)
}

// EscapeLaTeXInline escapes text for a table cell or heading. Newlines and
// tabs collapse to a single space so the text stays on one row.
func EscapeLaTeXInline(text string) string {
	return escapeLaTeX(text, inlineBreak)
}

func escapeLaTeX(text, newline string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/8)
	prevSpace := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if newline == inlineBreak && (c == '\n' || c == '\t') {
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = newline == inlineBreak && c == ' '
		writeEscaped(&b, c, newline)
	}
	return b.String()
}

// EscapeLaTeXMarkdown escapes text like EscapeLaTeX and renders **bold**
// spans as \textbf. An unterminated span is closed at the end.
func EscapeLaTeXMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/8)
	bold := false
	for i := 0; i < len(text); i++ {
		if text[i] == '*' && i+1 < len(text) && text[i+1] == '*' {
			if bold {
				b.WriteByte('}')
			} else {
				b.WriteString(`\textbf{`)
			}
			bold = !bold
			i++
			continue
		}
		writeEscaped(&b, text[i], paragraphBreak)
	}
	if bold {
		b.WriteByte('}')
	}
	return b.String()
}

// Text is the usual path for free text entering the document.
func Text(s string) string {
	return EscapeLaTeX(SanitizeASCII(s))
}

// Cell is Text for table cells, headings and page headers.
func Cell(s string) string {
	return strings.TrimSpace(EscapeLaTeXInline(SanitizeASCII(s)))
}

// =============================================================================
// Display casing
// =============================================================================

var acronyms = map[string]bool{
	"LLC": true, "LLP": true, "INC": true, "USA": true,
	"NYC": true, "HVAC": true, "ADA": true, "DOB": true,
}

// NormalizeCaps title-cases text that is entirely upper case, leaving short
// words (three letters or fewer) and known acronyms upper case. Mixed-case
// input is returned unchanged.
func NormalizeCaps(text string) string {
	if !isAllUpper(text) {
		return text
	}

	out := []byte(text)
	startWord := true
	for i := 0; i < len(out); i++ {
		c := out[i]
		if isASCIILetter(c) {
			lower := c | 0x20
			if startWord {
				out[i] = lower - 'a' + 'A'
			} else {
				out[i] = lower
			}
			startWord = false
			continue
		}
		switch c {
		case ' ', '\t', '\n', '-', '/', '(', ')', '\'', '&', '.':
			startWord = true
		default:
			startWord = false
		}
	}

	for pos := 0; pos < len(text); {
		for pos < len(text) && !isASCIILetter(text[pos]) {
			pos++
		}
		start := pos
		for pos < len(text) && isASCIILetter(text[pos]) {
			pos++
		}
		word := text[start:pos]
		if word == "" {
			continue
		}
		if len(word) <= 3 || acronyms[word] {
			copy(out[start:pos], word)
		}
	}
	return string(out)
}

func isAllUpper(text string) bool {
	hasAlpha := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if isASCIILetter(c) {
			hasAlpha = true
			if c >= 'a' && c <= 'z' {
				return false
			}
		}
	}
	return hasAlpha
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
