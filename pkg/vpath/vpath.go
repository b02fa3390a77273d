// Package vpath implements the virtual path value type used throughout the
// Driftbox core.
//
// A Path is a normalized sequence of "/"-separated segments. Redundant
// slashes, "." segments and relative ".." segments are resolved at
// construction. Equality, ordering and hashing are case-insensitive (the
// full string is case-folded), while the original casing is preserved for
// display and for the object-store layout.
//
// The namespace root is the path ".".
package vpath

import (
	"strings"
)

// Root is the implicit top-level folder of every namespace.
const Root = "."

// encodingSuffixes are the outer extensions recognized as content
// encodings. A path like "backup.tar.gz" has suffix ".tar.gz", not ".gz".
var encodingSuffixes = map[string]struct{}{
	".gz":  {},
	".bz2": {},
	".xz":  {},
	".zst": {},
	".br":  {},
	".z":   {},
	".lz":  {},
}

// Path is a normalized virtual path. The zero value equals the root ".".
type Path struct {
	raw    string
	folded string
}

// New constructs a normalized Path from a raw string. Redundant slashes
// and "." segments are dropped; ".." pops the previous segment where one
// exists and is dropped otherwise.
func New(raw string) Path {
	segs := make([]string, 0, 8)
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return Path{raw: Root, folded: Root}
	}
	joined := strings.Join(segs, "/")
	return Path{raw: joined, folded: strings.ToLower(joined)}
}

// Fold case-folds a single name the way path keys are folded.
func Fold(name string) string {
	return strings.ToLower(name)
}

// Join appends more segments to the path, normalizing the result.
func (p Path) Join(parts ...string) Path {
	if len(parts) == 0 {
		return p.normalized()
	}
	return New(p.String() + "/" + strings.Join(parts, "/"))
}

func (p Path) normalized() Path {
	if p.raw == "" {
		return Path{raw: Root, folded: Root}
	}
	return p
}

// String returns the path with its original casing.
func (p Path) String() string {
	return p.normalized().raw
}

// Key returns the case-folded form used for equality, ordering and joins.
func (p Path) Key() string {
	return p.normalized().folded
}

// IsRoot reports whether the path is the namespace root ".".
func (p Path) IsRoot() bool {
	return p.Key() == Root
}

// Equal reports case-insensitive equality.
func (p Path) Equal(other Path) bool {
	return p.Key() == other.Key()
}

// EqualStrict reports equality including casing.
func (p Path) EqualStrict(other Path) bool {
	return p.String() == other.String()
}

// Less orders paths by their case-folded form.
func (p Path) Less(other Path) bool {
	return p.Key() < other.Key()
}

// Name returns the final segment, or "." for the root.
func (p Path) Name() string {
	s := p.String()
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parent returns the containing folder. The parent of the root, and of
// any top-level entry, is the root.
func (p Path) Parent() Path {
	s := p.String()
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return Path{raw: Root, folded: Root}
	}
	return Path{raw: s[:i], folded: strings.ToLower(s[:i])}
}

// Parents returns every ancestor from the immediate parent up to the
// root, in that order. The root itself has no parents.
func (p Path) Parents() []Path {
	if p.IsRoot() {
		return nil
	}
	var parents []Path
	for cur := p.Parent(); ; cur = cur.Parent() {
		parents = append(parents, cur)
		if cur.IsRoot() {
			return parents
		}
	}
}

// extOf returns the last extension of name including the dot, or "".
// A leading dot (hidden files) and a trailing dot do not count.
func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

// Suffix returns the file extension including the leading dot. Double
// extensions are recognized when the outer extension is a known content
// encoding: Suffix("a.tar.gz") is ".tar.gz". No extension yields "".
func (p Path) Suffix() string {
	name := p.Name()
	if name == Root {
		return ""
	}
	outer := extOf(name)
	if outer == "" {
		return ""
	}
	if _, ok := encodingSuffixes[strings.ToLower(outer)]; ok {
		rest := name[:len(name)-len(outer)]
		if inner := extOf(rest); inner != "" {
			return inner + outer
		}
	}
	return outer
}

// Stem returns the final segment without the recognized suffix.
func (p Path) Stem() string {
	name := p.Name()
	return name[:len(name)-len(p.Suffix())]
}

// WithStem returns the path with its stem replaced, keeping the
// recognized suffix and the parent intact.
func (p Path) WithStem(stem string) Path {
	parent := p.Parent()
	name := stem + p.Suffix()
	if parent.IsRoot() {
		return New(name)
	}
	return parent.Join(name)
}

// WithSuffix returns the path with its recognized suffix replaced.
func (p Path) WithSuffix(suffix string) Path {
	parent := p.Parent()
	name := p.Stem() + suffix
	if parent.IsRoot() {
		return New(name)
	}
	return parent.Join(name)
}

// IsRelativeTo reports whether the path equals other or lies inside the
// subtree rooted at other, case-insensitively.
func (p Path) IsRelativeTo(other Path) bool {
	if other.IsRoot() {
		return true
	}
	pk, ok := p.Key(), other.Key()
	if pk == ok {
		return true
	}
	return strings.HasPrefix(pk, ok+"/")
}

// RelativeTo returns the suffix of the path below other, or "" when the
// two are equal. The caller must ensure p.IsRelativeTo(other).
func (p Path) RelativeTo(other Path) string {
	if other.IsRoot() {
		return p.String()
	}
	if p.Equal(other) {
		return ""
	}
	segs := strings.Split(p.String(), "/")
	skip := strings.Count(other.String(), "/") + 1
	return strings.Join(segs[skip:], "/")
}

// WithRestoredCasing returns the path with its leading prefix replaced by
// other's original casing, provided the path is relative to other. Used to
// preserve the parent's stored casing when creating children.
func (p Path) WithRestoredCasing(other Path) Path {
	if !p.IsRelativeTo(other) || other.IsRoot() {
		return p.normalized()
	}
	if p.Equal(other) {
		return other
	}
	return New(other.String() + "/" + p.RelativeTo(other))
}
