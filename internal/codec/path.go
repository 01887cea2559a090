// internal/codec/path.go
package codec

import (
	"github.com/solatis/microproto/internal/types"
)

/*
 * Path resolution over generic values.
 *
 * Resolves a parsed path (types.ParsePath) through objects, arrays, lists,
 * variants and resource tables. Object members resolve by name, and also by
 * index so that unnamed fields stay addressable ("[1]"). A variant resolves
 * its active alternative by name. Enforces MaxPathDepth.
 *
 * Key functions:
 *   - Resolve: traverses a generic value following the PathSegment chain
 *   - resolveRecursive: internal recursive traversal
 */

// ResolveResult contains the resolved value and the path taken.
type ResolveResult struct {
	Value        any                 // resolved value (nil if not found)
	ResolvedPath []types.PathSegment // segments consumed
	Found        bool                // true if path resolved to a value
}

// Resolve traverses value following path segments.
// Returns ErrPathTooDeep if path exceeds MaxPathDepth.
// Returns ErrFieldNotFound if path does not exist in value.
func Resolve(path []types.PathSegment, value any) (ResolveResult, error) {
	if len(path) > types.MaxPathDepth {
		return ResolveResult{}, types.ErrPathTooDeep
	}
	return resolveRecursive(path, value, nil)
}

func resolveRecursive(path []types.PathSegment, current any, resolvedSoFar []types.PathSegment) (ResolveResult, error) {
	if len(path) == 0 {
		return ResolveResult{
			Value:        current,
			ResolvedPath: resolvedSoFar,
			Found:        true,
		}, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case Object:
		if seg.IsIndex {
			if seg.Index >= len(v) {
				return ResolveResult{}, types.ErrFieldNotFound
			}
			return resolveRecursive(remaining, v[seg.Index].Value, append(resolvedSoFar, seg))
		}
		val, ok := v.Get(seg.Key)
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, val, append(resolvedSoFar, seg))

	case []any:
		if !seg.IsIndex {
			// Cannot use a name on a sequence
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if seg.Index < 0 || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v[seg.Index], append(resolvedSoFar, seg))

	case Variant:
		// Only the active alternative is addressable
		if seg.IsIndex || seg.Key != v.Name {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v.Value, append(resolvedSoFar, seg))

	case ResourceTable:
		if !seg.IsIndex || seg.Index >= len(v.Entries) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v.Entries[seg.Index], append(resolvedSoFar, seg))

	case ResourceEntry:
		if seg.IsIndex || seg.Key != "header" {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v.Header, append(resolvedSoFar, seg))

	default:
		// Scalar value but path continues
		return ResolveResult{}, types.ErrFieldNotFound
	}
}
