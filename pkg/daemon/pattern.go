package daemon

import (
	"path"
	"strings"
)

// matchPattern reports whether p matches a watch pattern, mirroring
// pathlib.PurePath.match's right-anchored glob semantics: an absolute
// pattern must match the whole path, while a relative one only needs to
// match a trailing run of path components.
func matchPattern(pattern, p string) bool {
	p = strings.TrimPrefix(p, "/")
	absolute := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return true
	}
	pParts := strings.Split(p, "/")
	patParts := strings.Split(pattern, "/")
	if len(patParts) > len(pParts) {
		return false
	}
	if absolute && len(patParts) != len(pParts) {
		return false
	}
	suffix := pParts[len(pParts)-len(patParts):]
	for i, pat := range patParts {
		ok, err := path.Match(pat, suffix[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}
