package engine

import (
	"fmt"

	"github.com/thinksystem/pddfr/pkg/flow"
)

// walkGet reads the value at segs under root, which must be a
// map[string]any (the state or input root map).
func walkGet(root map[string]any, segs []flow.PathSegment) (any, error) {
	var cur any = root
	for _, seg := range segs {
		switch seg.Kind {
		case flow.PathKeySeg:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("engine: cannot read field %q of %T", seg.Key, cur)
			}
			v, ok := m[seg.Key]
			if !ok {
				return nil, fmt.Errorf("engine: no such key %q", seg.Key)
			}
			cur = v
		case flow.PathIndexSeg:
			s, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("engine: cannot index into %T", cur)
			}
			if seg.Index < 0 || seg.Index >= len(s) {
				return nil, fmt.Errorf("engine: index %d out of range [0, %d)", seg.Index, len(s))
			}
			cur = s[seg.Index]
		default:
			return nil, fmt.Errorf("engine: unsupported path segment kind %v", seg.Kind)
		}
	}
	return cur, nil
}

// walkSet writes value at segs under root, creating intermediate
// map[string]any objects as needed — per pkg/flow's Compute/Assign
// semantics, a write to a path whose parents don't yet exist materializes
// them rather than failing.
func walkSet(root map[string]any, segs []flow.PathSegment, value any) error {
	if len(segs) == 0 {
		return fmt.Errorf("engine: cannot assign to the root itself")
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch seg.Kind {
		case flow.PathKeySeg:
			if last {
				cur[seg.Key] = value
				return nil
			}
			next, ok := cur[seg.Key]
			if !ok {
				created := make(map[string]any)
				cur[seg.Key] = created
				cur = created
				continue
			}
			nextMap, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("engine: cannot descend into %q: not an object", seg.Key)
			}
			cur = nextMap
		case flow.PathIndexSeg:
			return fmt.Errorf("engine: assigning through an index segment is not supported (index %d)", seg.Index)
		default:
			return fmt.Errorf("engine: unsupported path segment kind %v", seg.Kind)
		}
	}
	return nil
}
