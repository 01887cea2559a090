// internal/types/path.go
package types

import (
	"strconv"
	"strings"
)

/*
 * Paths into structured property values.
 *
 * A path addresses a field of an object value or an element of an array or
 * list value: "segment.length", "palette[2]", "palette[2][0]". Paths are
 * parsed once into PathSegment slices and resolved by internal/codec against
 * generic values.
 */

// PathSegment represents one component of a value path.
type PathSegment struct {
	Key     string // object field name (mutually exclusive with Index)
	Index   int    // element index (mutually exclusive with Key)
	IsIndex bool   // disambiguates Index=0 from unset
}

// String renders the segment in path syntax.
func (s PathSegment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// ParsePath splits a dotted path with optional [n] suffixes into segments.
// An empty path yields no segments and addresses the whole value.
func ParsePath(path string) ([]PathSegment, error) {
	if path == "" {
		return nil, nil
	}
	var segs []PathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, ErrInvalidPath
		}
		key := part
		if i := strings.IndexByte(part, '['); i >= 0 {
			key = part[:i]
			rest := part[i:]
			if key != "" {
				segs = append(segs, PathSegment{Key: key})
			}
			for rest != "" {
				end := strings.IndexByte(rest, ']')
				if rest[0] != '[' || end < 0 {
					return nil, ErrInvalidPath
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, ErrInvalidPath
				}
				segs = append(segs, PathSegment{Index: n, IsIndex: true})
				rest = rest[end+1:]
			}
			continue
		}
		segs = append(segs, PathSegment{Key: key})
	}
	if len(segs) > MaxPathDepth {
		return nil, ErrPathTooDeep
	}
	return segs, nil
}
