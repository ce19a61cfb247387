package report

import (
	"strings"
)

type listKind int

const (
	listNone listKind = iota
	listItemize
	listEnumerate
)

func (k listKind) env() string {
	if k == listEnumerate {
		return "enumerate"
	}
	return "itemize"
}

// MarkdownToLaTeX converts the light markdown that narrative text and
// inspector notes use into LaTeX. "#" and "##" lines become unnumbered
// headings, "-", "*" and "o " lines become list items, "1." lines become
// enumerated items, and a blank line closes any open list and ends the
// paragraph. Text is sanitized and escaped, with **bold** kept.
func MarkdownToLaTeX(text string) string {
	text = SanitizeASCII(text)

	var b strings.Builder
	open := listNone
	closeList := func() {
		if open != listNone {
			b.WriteString(`\end{` + open.env() + "}\n")
			open = listNone
		}
	}
	openList := func(k listKind) {
		if open == k {
			return
		}
		closeList()
		b.WriteString(`\begin{` + k.env() + "}\n")
		open = k
	}

	paragraph := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			closeList()
			if paragraph {
				b.WriteString("\n")
				paragraph = false
			}

		case strings.HasPrefix(line, "#"):
			closeList()
			level := len(line) - len(strings.TrimLeft(line, "#"))
			heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if heading == "" {
				continue
			}
			cmd := `\subsection*`
			if level >= 2 {
				cmd = `\subsubsection*`
			}
			b.WriteString(cmd + "{" + EscapeLaTeXMarkdown(heading) + "}\n")
			paragraph = false

		case isBullet(line):
			openList(listItemize)
			b.WriteString(`\item ` + EscapeLaTeXMarkdown(strings.TrimSpace(line[2:])) + "\n")
			paragraph = false

		case enumeratedItem(line) != "":
			openList(listEnumerate)
			b.WriteString(`\item ` + EscapeLaTeXMarkdown(enumeratedItem(line)) + "\n")
			paragraph = false

		default:
			closeList()
			b.WriteString(EscapeLaTeXMarkdown(line) + "\n")
			paragraph = true
		}
	}
	closeList()
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func isBullet(line string) bool {
	if len(line) < 2 || line[1] != ' ' {
		return false
	}
	switch line[0] {
	case '-', '*', 'o':
		return strings.TrimSpace(line[2:]) != ""
	}
	return false
}

// enumeratedItem returns the item text of a "1. text" or "1) text" line.
func enumeratedItem(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 || i+1 >= len(line) {
		return ""
	}
	if (line[i] != '.' && line[i] != ')') || line[i+1] != ' ' {
		return ""
	}
	return strings.TrimSpace(line[i+2:])
}
