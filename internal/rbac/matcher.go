package rbac

import "strings"

// NormalizePath lower-cases p, trims surrounding whitespace, guarantees a
// leading separator and exactly one trailing separator. The empty string
// normalizes to "/".
func NormalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/") + "/"
}

// Matches reports whether the resource's backend prefix matches the request
// path after normalizing both sides. A resource whose prefix normalizes to
// bare "/" matches every path; administrators assign such catch-alls only
// when a global grant is intended.
func Matches(requestPath string, res Resource) bool {
	return strings.HasPrefix(NormalizePath(requestPath), NormalizePath(res.LinkBackend))
}

// MatchingResources returns every candidate whose prefix matches the path.
// Overlapping prefixes are all returned; the evaluator deliberately has no
// longest-prefix tie-break (a catch-all resource combines with explicit
// permission codes).
func MatchingResources(requestPath string, candidates []Resource) []Resource {
	path := NormalizePath(requestPath)
	var matched []Resource
	for _, res := range candidates {
		if strings.HasPrefix(path, NormalizePath(res.LinkBackend)) {
			matched = append(matched, res)
		}
	}
	return matched
}
