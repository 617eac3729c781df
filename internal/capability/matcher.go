// Package capability implements the two-level glob matcher and the
// capability-subset relation that the DCT engine uses to enforce
// monotonic narrowing and to answer "does this token authorize this
// request" queries.
//
// This is deliberately hand-rolled rather than built on a general
// path-glob library: the semantics required here (single-level "*",
// multi-level "**" with enumerated suffix matching, plus the specific
// prefix/** and prefix/* subset relation) don't match what shell-glob
// libraries like gobwas/glob implement, and getting the subset relation
// wrong silently breaks monotonic narrowing — see DESIGN.md.
package capability

import (
	"strings"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

// MatchCapability reports whether cap authorizes the given request.
func MatchCapability(cap types.Capability, namespace, action, resource string) bool {
	if cap.Namespace != "*" && cap.Namespace != namespace {
		return false
	}
	if cap.Action != "*" && cap.Action != action {
		return false
	}
	return MatchGlob(cap.Resource, resource)
}

// MatchGlob reports whether value matches pattern under the segment
// glob rules: "*" matches exactly one segment, "**" matches any
// contiguous run of segments including zero. A bare "*" or "**"
// pattern (no slashes) matches anything.
func MatchGlob(pattern, value string) bool {
	if pattern == "*" || pattern == "**" {
		return true
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(value, "/"))
}

func matchSegments(pat, val []string) bool {
	if len(pat) == 0 {
		return len(val) == 0
	}
	head := pat[0]
	switch head {
	case "**":
		// Enumerate every suffix position: "**" may consume 0..len(val) segments.
		for i := 0; i <= len(val); i++ {
			if matchSegments(pat[1:], val[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(val) == 0 {
			return false
		}
		return matchSegments(pat[1:], val[1:])
	default:
		if len(val) == 0 || val[0] != head {
			return false
		}
		return matchSegments(pat[1:], val[1:])
	}
}

// IsSubset reports whether child is authorized by at least one parent
// capability — i.e. narrowing from parents to child is valid.
func IsSubset(child types.Capability, parents []types.Capability) bool {
	for _, p := range parents {
		if p.Namespace != child.Namespace {
			continue
		}
		if p.Action != child.Action {
			continue
		}
		if IsResourceSubset(child.Resource, p.Resource) {
			return true
		}
	}
	return false
}

// IsResourceSubset reports whether childResource is narrower than or
// equal to parentResource. Deliberately conservative: some legitimate
// narrowings such as "prefix/*/suffix" narrowing "prefix/**" are
// rejected rather than risk a false "narrower" (see DESIGN.md).
func IsResourceSubset(childResource, parentResource string) bool {
	if parentResource == "*" || parentResource == "**" {
		return true
	}
	if parentResource == childResource {
		return true
	}
	if prefix, ok := strings.CutSuffix(parentResource, "/**"); ok {
		return strings.HasPrefix(childResource, prefix+"/")
	}
	if prefix, ok := strings.CutSuffix(parentResource, "/*"); ok {
		rest, hasPrefix := strings.CutPrefix(childResource, prefix+"/")
		return hasPrefix && !strings.Contains(rest, "/")
	}
	return false
}
