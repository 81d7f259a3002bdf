package position

import (
	"strings"
)

// lineInfo is the shallow structure of one line of markup.
type lineInfo struct {
	runes   []rune
	indent  int  // leading whitespace width, tabs count as one column
	tabs    bool // leading whitespace contains a tab
	blank   bool // only whitespace
	comment bool // first non-whitespace rune is '#'
	list    bool // first non-whitespace rune is a "- " sequence marker
	sep     int  // rune index of the key separator, -1 if none
	key     string
}

// hasKey reports whether the line declares a mapping key.
func (l lineInfo) hasKey() bool {
	return l.sep >= 0 && l.key != ""
}

// structural reports whether the line can take part in nesting.
func (l lineInfo) structural() bool {
	return !l.blank && !l.comment && !l.list
}

// splitLines splits text on '\n', dropping a trailing '\r' from each line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// parseLine scans a line once. cursor is the cursor column on this line, or
// -1 for lines other than the cursor's; a colon immediately before the
// cursor counts as a separator even when nothing follows it yet.
func parseLine(s string, cursor int) lineInfo {
	info := lineInfo{runes: []rune(s), sep: -1}

	i := 0
	for i < len(info.runes) && (info.runes[i] == ' ' || info.runes[i] == '\t') {
		if info.runes[i] == '\t' {
			info.tabs = true
		}
		i++
	}
	info.indent = i

	if i == len(info.runes) {
		info.blank = true
		return info
	}
	switch {
	case info.runes[i] == '#':
		info.comment = true
		return info
	case info.runes[i] == '-' && (i+1 == len(info.runes) || info.runes[i+1] == ' '):
		info.list = true
		return info
	}

	info.sep = findSeparator(info.runes, i, cursor)
	if info.sep >= 0 {
		info.key = unquote(strings.TrimSpace(string(info.runes[i:info.sep])))
	}
	return info
}

// findSeparator returns the index of the first ':' at or after start that is
// outside quotes and followed by whitespace, end of line, or the cursor.
func findSeparator(r []rune, start, cursor int) int {
	var quote rune
	for i := start; i < len(r); i++ {
		c := r[i]
		switch {
		case quote == '"' && c == '\\':
			i++ // skip the escaped rune
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			if i == start {
				quote = c
			}
		case c == '#' && i > start && (r[i-1] == ' ' || r[i-1] == '\t'):
			return -1
		case c == ':':
			if i+1 == len(r) || r[i+1] == ' ' || r[i+1] == '\t' || i+1 == cursor {
				return i
			}
		}
	}
	return -1
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
