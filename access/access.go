package access

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrForbidden = errors.New("no image permissions")

var separator = regexp.MustCompile(`["'\s]*,["'\s]*`)

// PermissionSet is the set of monitor ids a caller may view. The zero value
// is unrestricted.
type PermissionSet struct {
	ids map[string]struct{}
}

// ParsePermissionSet reads a comma separated id list, tolerating quotes and
// whitespace around each entry.
func ParsePermissionSet(raw string) PermissionSet {
	raw = strings.Trim(raw, "\"' \t\r\n")
	if raw == "" {
		return PermissionSet{}
	}

	ids := make(map[string]struct{})
	for _, part := range separator.Split(raw, -1) {
		if part == "" {
			continue
		}
		ids[normalize(part)] = struct{}{}
	}

	return PermissionSet{ids: ids}
}

func NewPermissionSet(ids ...uint64) PermissionSet {
	if len(ids) == 0 {
		return PermissionSet{}
	}

	set := PermissionSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[strconv.FormatUint(id, 10)] = struct{}{}
	}
	return set
}

func (p PermissionSet) Unrestricted() bool {
	return len(p.ids) == 0
}

func (p PermissionSet) Contains(id string) bool {
	_, ok := p.ids[normalize(id)]
	return ok
}

// MonitorPrefix returns the leading run of decimal digits of a path.
func MonitorPrefix(path string) string {
	end := 0
	for end < len(path) && path[end] >= '0' && path[end] <= '9' {
		end++
	}
	return path[:end]
}

// Check grants access to a direct path when its monitor prefix is permitted.
func (p PermissionSet) Check(path string) error {
	if p.Unrestricted() {
		return nil
	}

	prefix := MonitorPrefix(path)
	if prefix == "" || !p.Contains(prefix) {
		return ErrForbidden
	}
	return nil
}

// normalize makes "007" and "7" the same id.
func normalize(id string) string {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return id
}
