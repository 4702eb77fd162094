package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
)

// Lookup loads the discount records for a set of submitted codes.
type Lookup interface {
	Lookup(ctx context.Context, userID string, codes []string) ([]Meta, error)
}

// RepoLookup implements Lookup on top of a Repository.
type RepoLookup struct {
	repo Repository
}

// NewRepoLookup creates a RepoLookup backed by the given Repository.
func NewRepoLookup(repo Repository) *RepoLookup {
	return &RepoLookup{repo: repo}
}

// Lookup normalizes and de-duplicates codes, fetches matching coupons and the
// user's grants, and maps them to Meta. No codes means no query.
func (l *RepoLookup) Lookup(ctx context.Context, userID string, codes []string) ([]Meta, error) {
	normalized := lo.Uniq(lo.FilterMap(codes, func(c string, _ int) (string, bool) {
		n := NormalizeCode(c)
		return n, n != ""
	}))
	if len(normalized) == 0 {
		return nil, nil
	}

	srcs, err := l.repo.FindSources(ctx, userID, normalized)
	if err != nil {
		return nil, errors.Wrap(err, "find coupon sources")
	}

	metas, err := FromSources(srcs)
	if err != nil {
		return nil, errors.Wrap(err, "map coupon sources")
	}
	return metas, nil
}
