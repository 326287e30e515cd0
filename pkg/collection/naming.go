package collection

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest collection name, in bytes.
const MaxNameLength = 63

// NewName returns the automatic name for a new child of parent:
// "Collection" without a parent, "Collection N" under a master collection and
// "<parent name> N" otherwise, where N is parent's child count plus one.
func NewName(parent *Collection) string {
	if parent == nil {
		return "Collection"
	}
	number := len(parent.children) + 1
	if parent.IsMaster() {
		return fmt.Sprintf("Collection %d", number)
	}
	suffix := " " + strconv.Itoa(number)
	return truncateName(parent.Name, MaxNameLength-len(suffix)) + suffix
}

// truncateName cuts s to at most n bytes without splitting a rune.
func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// uniqueName returns name, or name with the lowest free ".NNN" suffix when a
// library collection already uses it.
func (l *Library) uniqueName(name string) string {
	name = truncateName(name, MaxNameLength)
	taken := make(map[string]struct{}, len(l.collections))
	for _, c := range l.collections {
		taken[c.Name] = struct{}{}
	}
	if _, ok := taken[name]; !ok {
		return name
	}

	base := splitNameSuffix(name)
	for n := 1; ; n++ {
		suffix := fmt.Sprintf(".%03d", n)
		candidate := truncateName(base, MaxNameLength-len(suffix)) + suffix
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// splitNameSuffix strips a trailing ".NNN" suffix of ASCII digits.
func splitNameSuffix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return name
	}
	for _, r := range []byte(name[i+1:]) {
		if r < '0' || r > '9' {
			return name
		}
	}
	return name[:i]
}
