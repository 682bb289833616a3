package flow

import (
	"strconv"
	"strings"
)

// ParsePath parses a dotted/bracketed path string (e.g. "user.profile.name"
// or "items[0].id") into the PathSegment chain Assign/Fetch nodes walk at
// runtime, creating intermediate objects as needed on write. A leading
// "state." or "input." selects the corresponding root; a bare path defaults
// to State, since spec.md treats state as the implicit root for identifier
// paths.
func ParsePath(path string) []PathSegment {
	segs := make([]PathSegment, 0, 4)

	rest := path
	switch {
	case strings.HasPrefix(rest, "state."):
		segs = append(segs, PathSegment{Kind: PathState})
		rest = strings.TrimPrefix(rest, "state.")
	case strings.HasPrefix(rest, "input."):
		segs = append(segs, PathSegment{Kind: PathInput})
		rest = strings.TrimPrefix(rest, "input.")
	default:
		segs = append(segs, PathSegment{Kind: PathState})
	}

	for _, part := range splitPathParts(rest) {
		if idx, err := strconv.Atoi(part); err == nil {
			segs = append(segs, PathSegment{Kind: PathIndexSeg, Index: idx})
		} else if part != "" {
			segs = append(segs, PathSegment{Kind: PathKeySeg, Key: part})
		}
	}
	return segs
}

// splitPathParts splits "items[0].id" into ["items", "0", "id"].
func splitPathParts(path string) []string {
	var parts []string
	var cur strings.Builder
	for _, c := range path {
		switch c {
		case '.':
			parts = append(parts, cur.String())
			cur.Reset()
		case '[':
			parts = append(parts, cur.String())
			cur.Reset()
		case ']':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	parts = append(parts, cur.String())

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
