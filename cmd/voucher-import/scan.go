package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/petalcraft/checkout/internal/domain/coupon"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 64
	progressEvery = 1_000_000
)

// findCollisions returns every code that occurs more than once across files,
// with its number of occurrences.
//
// Pass 1 builds one bloom filter per file and remembers codes the filter had
// already seen in the same file. Pass 2 counts exact occurrences of every
// code that is a repeat in its own file or possibly present in another file.
// Bloom false positives end up with a count of one and are dropped.
func findCollisions(ctx context.Context, files []string, expected uint, fpr float64) (map[string]int, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	repeats := make([]map[string]struct{}, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, fpr)
			seen := make(map[string]struct{})
			var n uint64
			err := streamCodes(gctx, path, func(code string) {
				if filter.TestAndAddString(code) {
					seen[code] = struct{}{}
				}
				if n++; n%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", n))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			filters[i], repeats[i] = filter, seen
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make([]map[string]int, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			local := make(map[string]int)
			err := streamCodes(gctx, path, func(code string) {
				if _, ok := repeats[i][code]; ok || inOtherFilter(filters, i, code) {
					local[code]++
				}
			})
			if err != nil {
				return errors.Wrapf(err, "count %s", path)
			}
			counts[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make(map[string]int)
	for _, local := range counts {
		for code, n := range local {
			total[code] += n
		}
	}
	for code, n := range total {
		if n < 2 {
			delete(total, code)
		}
	}
	return total, nil
}

func inOtherFilter(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// streamCodes calls fn with every normalized code of a gzip file with one
// code per line. Blank lines and codes of unusable length are skipped.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := coupon.NormalizeCode(sc.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
