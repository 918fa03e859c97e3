package obs

import "strings"

// leaves under /v1/events/ that are routes of their own, not event IDs
var staticEventLeaves = map[string]bool{
	"upcoming": true,
	"search":   true,
	"stamps":   true,
	"stream":   true,
}

// CanonicalPath collapses identifier segments so metric labels stay
// low-cardinality: /v1/events/<id>[/leaf], /v1/users/<id> and /e/<link>
// are reported under placeholder labels.
func CanonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	seg := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch {
	case len(seg) >= 3 && seg[0] == "v1" && seg[1] == "events" && seg[2] != "" && !staticEventLeaves[seg[2]]:
		if len(seg) == 3 {
			return "/v1/events/:id"
		}
		if len(seg) == 4 {
			return "/v1/events/:id/" + seg[3]
		}
	case len(seg) == 3 && seg[0] == "v1" && seg[1] == "users" && seg[2] != "":
		return "/v1/users/:id"
	case len(seg) == 2 && seg[0] == "e" && seg[1] != "":
		return "/e/:link"
	}
	return p
}
