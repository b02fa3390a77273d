package filecore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/driftbox/driftbox/pkg/vpath"
)

// GetAvailablePath returns path unchanged when free, otherwise the
// smallest free "stem (N).suffix" sibling with N at least one past the
// number of suffixed siblings already present. Comparison is
// case-insensitive.
func (c *Core) GetAvailablePath(ctx context.Context, ns string, path vpath.Path) (vpath.Path, error) {
	exists, err := c.meta.Files.ExistsAtPath(ctx, ns, path)
	if err != nil {
		return vpath.Path{}, err
	}
	if !exists {
		return path, nil
	}

	stem := strings.ToLower(path.Stem())
	suffix := strings.ToLower(path.Suffix())
	base := ""
	if parent := path.Parent(); !parent.IsRoot() {
		base = regexp.QuoteMeta(parent.Key()) + "/"
	}
	re := regexp.MustCompile(
		"^" + base + regexp.QuoteMeta(stem) + ` \(\d+\)` + regexp.QuoteMeta(suffix) + "$")

	count, err := c.meta.Files.CountByPathPattern(ctx, ns, path, re)
	if err != nil {
		return vpath.Path{}, err
	}

	for n := count + 1; ; n++ {
		candidate := path.WithStem(fmt.Sprintf("%s (%d)", path.Stem(), n))
		exists, err := c.meta.Files.ExistsAtPath(ctx, ns, candidate)
		if err != nil {
			return vpath.Path{}, err
		}
		if !exists {
			return candidate, nil
		}
	}
}
