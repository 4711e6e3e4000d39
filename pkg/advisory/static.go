package advisory

import (
	"context"
	"strings"
)

// StaticChecker serves advisories from memory. It backs offline runs and
// tests.
type StaticChecker struct {
	// Advisories is keyed by lower-case slug.
	Advisories map[string][]Advisory
	// Err, when set, is returned by every lookup.
	Err error
}

func (s StaticChecker) Lookup(ctx context.Context, slug string) ([]Advisory, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Advisories[strings.ToLower(slug)], nil
}
