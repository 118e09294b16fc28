package report

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineKind classifies one line of a line diff.
type LineKind int

const (
	LineContext LineKind = iota
	LineRemoved
	LineAdded
)

// Line is one line of a line diff.
type Line struct {
	Kind    LineKind
	Content string
}

// String renders the line with a -, + or space prefix.
func (l Line) String() string {
	switch l.Kind {
	case LineRemoved:
		return "-" + l.Content
	case LineAdded:
		return "+" + l.Content
	}
	return " " + l.Content
}

// LineDiff compares two texts line by line. Context lines are dropped
// unless withContext is set.
func LineDiff(before, after string, withContext bool) []Line {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []Line
	for _, d := range diffs {
		kind := LineContext
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = LineRemoved
		case diffmatchpatch.DiffInsert:
			kind = LineAdded
		}
		if kind == LineContext && !withContext {
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, Line{Kind: kind, Content: line})
		}
	}
	return out
}

// HasChanges reports whether any line was added or removed.
func HasChanges(lines []Line) bool {
	for _, l := range lines {
		if l.Kind != LineContext {
			return true
		}
	}
	return false
}
