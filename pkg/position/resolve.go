package position

import (
	"unicode"

	"github.com/configdesk/configdesk/pkg/schema"
)

// Resolve maps (line, column) in text to a CursorContext. Line and column are
// 0-based; column counts runes. Out-of-range locations are clamped and the
// result is flagged Ambiguous. Cost is linear in the size of text.
func Resolve(text string, line, column int) CursorContext {
	lines := splitLines(text)
	ambiguous := false

	if line < 0 {
		line, ambiguous = 0, true
	}
	if column < 0 {
		column, ambiguous = 0, true
	}

	// A cursor below the last line sits on a virtual blank line.
	curText := ""
	if line < len(lines) {
		curText = lines[line]
	} else {
		ambiguous = true
	}

	cur := parseLine(curText, column)
	indentCol := column // indentation implied by the cursor when it sits in whitespace
	if column > len(cur.runes) {
		if !cur.blank {
			ambiguous = true
		}
		column = len(cur.runes)
	}
	if cur.tabs {
		ambiguous = true
	}

	ctx := CursorContext{TokenKind: KeyToken}

	// The cursor sits in the leading whitespace (or on a blank line): the key
	// it will type lives at the cursor's column.
	level := cur.indent
	if cur.blank || column <= cur.indent {
		level = indentCol
		if !cur.blank {
			// The line's own key is to the right of the cursor.
			cur.sep = -1
			cur.key = ""
		}
	}
	ctx.Indent = level

	if cur.sep >= 0 && cur.sep < column {
		ctx.TokenKind = ValueToken
	}

	// Rebuild the ancestor chain from lines above the cursor.
	upper := line
	if upper > len(lines) {
		upper = len(lines)
	}
	ancestors, parentLine, parentIndent, amb := ancestorsAbove(lines, upper, level)
	ambiguous = ambiguous || amb

	path := make(schema.Path, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		path = append(path, ancestors[i])
	}

	switch ctx.TokenKind {
	case ValueToken:
		path = append(path, cur.key)
		start := skipSpaces(cur.runes, cur.sep+1, column)
		ctx.ReplaceRange = replaceRange(cur.runes, line, start, column)
	default:
		start := column
		if !cur.blank && column > cur.indent {
			start = cur.indent
		}
		ctx.ReplaceRange = replaceRange(cur.runes, line, start, column)

		siblings, childIndent := siblingKeys(lines, line, parentLine, parentIndent, level)
		if childIndent >= 0 && childIndent != level {
			ambiguous = true
		}
		ctx.SiblingKeys = siblings
	}

	ctx.Path = path
	ctx.PartialText = string(cur.runes[ctx.ReplaceRange.StartColumn:ctx.ReplaceRange.EndColumn])
	ctx.Ambiguous = ambiguous
	return ctx
}

// ancestorsAbove scans upward from the line above `line` and collects the
// keys of lines whose indentation is strictly smaller than everything seen
// so far, starting from the threshold `level`. Keys are returned leaf first.
// parentLine is the index of the nearest ancestor (-1 for the root) and
// parentIndent its indentation (-1 for the root). An indented level with no
// ancestor is ambiguous.
func ancestorsAbove(lines []string, line, level int) (keys []string, parentLine, parentIndent int, ambiguous bool) {
	parentLine, parentIndent = -1, -1
	threshold := level
	for i := line - 1; i >= 0 && threshold > 0; i-- {
		info := parseLine(lines[i], -1)
		if !info.structural() {
			continue
		}
		if info.tabs {
			ambiguous = true
		}
		if info.indent >= threshold {
			continue
		}
		if !info.hasKey() {
			// A less indented line that is not a key ends the chain
			// without a clean parent.
			ambiguous = true
			threshold = info.indent
			continue
		}
		if parentLine < 0 {
			parentLine, parentIndent = i, info.indent
		}
		keys = append(keys, info.key)
		threshold = info.indent
	}
	// Indented with nothing open above it.
	if level > 0 && parentLine < 0 {
		ambiguous = true
	}
	return keys, parentLine, parentIndent, ambiguous
}

// siblingKeys collects keys that share the cursor's parent block and nesting
// level, scanning both above and below the cursor line. It also returns the
// indentation the block's existing children use (-1 if it has none).
func siblingKeys(lines []string, line, parentLine, parentIndent, level int) ([]string, int) {
	type entry struct {
		key    string
		indent int
	}
	var block []entry
	childIndent := -1

	consider := func(i int) bool {
		info := parseLine(lines[i], -1)
		if !info.structural() {
			return true
		}
		if info.indent <= parentIndent {
			return false // end of the parent's block
		}
		if childIndent < 0 || info.indent < childIndent {
			childIndent = info.indent
		}
		if info.hasKey() {
			block = append(block, entry{key: info.key, indent: info.indent})
		}
		return true
	}

	for i := parentLine + 1; i < line && i < len(lines); i++ {
		consider(i)
	}
	for i := line + 1; i < len(lines); i++ {
		if !consider(i) {
			break
		}
	}

	target := level
	if childIndent >= 0 {
		target = childIndent
	}
	var keys []string
	seen := make(map[string]bool)
	for _, e := range block {
		if e.indent == target && !seen[e.key] {
			seen[e.key] = true
			keys = append(keys, e.key)
		}
	}
	return keys, childIndent
}

// skipSpaces advances from start over whitespace, stopping at limit.
func skipSpaces(r []rune, start, limit int) int {
	for start < limit && unicode.IsSpace(r[start]) {
		start++
	}
	if start > limit {
		return limit
	}
	return start
}

// replaceRange builds the span [start, end) and steps over an opening quote
// so suggestions replace only the quoted content.
func replaceRange(r []rune, line, start, end int) Range {
	if start < end && (r[start] == '"' || r[start] == '\'') {
		start++
	}
	if start > end {
		start = end
	}
	return Range{Line: line, StartColumn: start, EndColumn: end}
}
