package vpath

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "a/b/c.txt", "a/b/c.txt"},
		{"redundant slashes", "a//b///c", "a/b/c"},
		{"leading slash", "/a/b", "a/b"},
		{"trailing slash", "a/b/", "a/b"},
		{"dot segments", "a/./b/.", "a/b"},
		{"dotdot pops", "a/b/../c", "a/c"},
		{"dotdot at root drops", "../a", "a"},
		{"empty is root", "", "."},
		{"root", ".", "."},
		{"only slashes", "///", "."},
		{"casing preserved", "Docs/Photo.JPG", "Docs/Photo.JPG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.in).String(); got != tt.want {
				t.Errorf("New(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEqualityIsCaseInsensitive(t *testing.T) {
	a := New("Docs/Report.PDF")
	b := New("docs/report.pdf")

	if !a.Equal(b) {
		t.Error("expected case-insensitive equality")
	}
	if a.EqualStrict(b) {
		t.Error("strict equality must respect casing")
	}
	if a.Key() != "docs/report.pdf" {
		t.Errorf("unexpected key %q", a.Key())
	}
}

func TestNameParent(t *testing.T) {
	p := New("a/b/f.txt")

	if p.Name() != "f.txt" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Parent().String() != "a/b" {
		t.Errorf("Parent() = %q", p.Parent())
	}
	if New("a").Parent().String() != "." {
		t.Error("parent of top-level entry must be the root")
	}
	if !New(".").Parent().IsRoot() {
		t.Error("parent of root must be the root")
	}
}

func TestParents(t *testing.T) {
	got := New("a/b/f.txt").Parents()
	want := []string{"a/b", "a", "."}

	if len(got) != len(want) {
		t.Fatalf("got %d parents, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("parents[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if New(".").Parents() != nil {
		t.Error("root has no parents")
	}
}

func TestSuffixStem(t *testing.T) {
	tests := []struct {
		in     string
		suffix string
		stem   string
	}{
		{"f.txt", ".txt", "f"},
		{"archive.tar.gz", ".tar.gz", "archive"},
		{"archive.tar.bz2", ".tar.bz2", "archive"},
		{"data.gz", ".gz", "data"},
		{"noext", "", "noext"},
		{".hidden", "", ".hidden"},
		{"a/b/img.JPEG", ".JPEG", "img"},
		{"trailing.", "", "trailing."},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := New(tt.in)
			if p.Suffix() != tt.suffix {
				t.Errorf("Suffix() = %q, want %q", p.Suffix(), tt.suffix)
			}
			if p.Stem() != tt.stem {
				t.Errorf("Stem() = %q, want %q", p.Stem(), tt.stem)
			}
		})
	}
}

func TestWithStem(t *testing.T) {
	p := New("a/b/archive.tar.gz").WithStem("archive (1)")
	if p.String() != "a/b/archive (1).tar.gz" {
		t.Errorf("WithStem = %q", p)
	}

	top := New("f.txt").WithStem("g")
	if top.String() != "g.txt" {
		t.Errorf("WithStem at top level = %q", top)
	}
}

func TestIsRelativeTo(t *testing.T) {
	p := New("a/b/c/f.txt")

	if !p.IsRelativeTo(New("a/b")) {
		t.Error("expected relative to a/b")
	}
	if !p.IsRelativeTo(New("A/B")) {
		t.Error("relativity must be case-insensitive")
	}
	if !p.IsRelativeTo(New(".")) {
		t.Error("everything is relative to the root")
	}
	if p.IsRelativeTo(New("a/bc")) {
		t.Error("a/bc is not a segment prefix of a/b/c")
	}
	if !p.IsRelativeTo(p) {
		t.Error("a path is relative to itself")
	}
}

func TestRelativeTo(t *testing.T) {
	p := New("a/b/c/f.txt")

	if got := p.RelativeTo(New("a/b")); got != "c/f.txt" {
		t.Errorf("RelativeTo = %q", got)
	}
	if got := p.RelativeTo(p); got != "" {
		t.Errorf("RelativeTo self = %q", got)
	}
	if got := p.RelativeTo(New(".")); got != "a/b/c/f.txt" {
		t.Errorf("RelativeTo root = %q", got)
	}
}

func TestWithRestoredCasing(t *testing.T) {
	t.Run("prefix casing restored", func(t *testing.T) {
		p := New("docs/photos/IMG.jpg").WithRestoredCasing(New("Docs/Photos"))
		if p.String() != "Docs/Photos/IMG.jpg" {
			t.Errorf("got %q", p)
		}
	})

	t.Run("unrelated path unchanged", func(t *testing.T) {
		p := New("other/x.txt").WithRestoredCasing(New("Docs"))
		if p.String() != "other/x.txt" {
			t.Errorf("got %q", p)
		}
	})

	t.Run("equal path adopts other casing", func(t *testing.T) {
		p := New("docs").WithRestoredCasing(New("Docs"))
		if p.String() != "Docs" {
			t.Errorf("got %q", p)
		}
	})
}

func TestOrdering(t *testing.T) {
	if !New("Alpha").Less(New("beta")) {
		t.Error("ordering must fold case")
	}
	if New("b").Less(New("Abc")) {
		t.Error("b must sort after Abc")
	}
}
