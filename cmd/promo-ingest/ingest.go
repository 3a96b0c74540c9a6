package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"sort"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/promo"
)

// maxFiles is bounded by the width of the per-code file bitmask.
const maxFiles = bits.UintSize

const progressEvery = 10_000_000

type config struct {
	Files             []string
	MinFiles          int
	MinLen            int
	MaxLen            int
	Capacity          uint
	FalsePositiveRate float64
	BatchSize         int
	// Template is applied to every imported code; Code is filled per code.
	Template promo.Input
}

func (c config) validate() error {
	switch {
	case len(c.Files) == 0:
		return errors.New("no input files")
	case len(c.Files) > maxFiles:
		return errors.Errorf("at most %d input files are supported", maxFiles)
	case c.MinFiles < 1 || c.MinFiles > len(c.Files):
		return errors.Errorf("min-files must be between 1 and %d", len(c.Files))
	case c.MinLen < 1 || c.MaxLen < c.MinLen:
		return errors.New("invalid code length bounds")
	case c.BatchSize < 1:
		return errors.New("batch-size must be positive")
	}
	tmpl := c.Template
	tmpl.Code = "TEMPLATE"
	if _, err := promo.New(tmpl, tmpl.ValidFrom); err != nil {
		return errors.Wrap(err, "discount template")
	}
	return nil
}

// normalize returns the canonical code for a line, or "" when the line does
// not hold a code of acceptable length.
func (c config) normalize(line string) string {
	code := promo.NormalizeCode(line)
	if len(code) < c.MinLen || len(code) > c.MaxLen {
		return ""
	}
	return code
}

// findCodes returns, sorted, the codes present in at least MinFiles files.
//
// Pass 1 builds one bloom filter per file. Pass 2 re-reads every file and
// keeps a code when enough other filters report it, marking the file's bit.
// Only files that really contain a code set its bit, so bloom false
// positives cannot push a code over the threshold.
func findCodes(ctx context.Context, lg *zap.Logger, cfg config) ([]string, error) {
	filters := make([]*bloom.BloomFilter, len(cfg.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate)
			var count uint64
			err := streamGzFile(gctx, path, func(line string) {
				if code := cfg.normalize(line); code != "" {
					filter.AddString(code)
					count++
					if count%progressEvery == 0 {
						lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]map[string]uint, len(cfg.Files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(i)
			err := streamGzFile(gctx, path, func(line string) {
				code := cfg.normalize(line)
				if code == "" {
					return
				}
				others := 0
				for j, f := range filters {
					if j != i && f.TestString(code) {
						others++
					}
				}
				if others+1 >= cfg.MinFiles {
					found[code] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			lg.Info("Pass 2 complete", zap.String("file", path), zap.Int("candidates", len(found)))
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range results {
		for code, mask := range found {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= cfg.MinFiles {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
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

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// importer is implemented by *postgres.PromoRepository.
type importer interface {
	Import(ctx context.Context, promos []promo.PromoCode) (int, error)
}

// importCodes inserts codes in batches, skipping codes that already exist.
// It returns the number of inserted codes.
func importCodes(ctx context.Context, lg *zap.Logger, repo importer, cfg config, codes []string, now time.Time) (int, error) {
	var inserted int
	batch := make([]promo.PromoCode, 0, cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := repo.Import(ctx, batch)
		inserted += n
		if err != nil {
			return err
		}
		lg.Info("Write progress", zap.Int("inserted", inserted), zap.Int("total", len(codes)))
		batch = batch[:0]
		return nil
	}

	for _, code := range codes {
		in := cfg.Template
		in.Code = code
		p, err := promo.New(in, now)
		if err != nil {
			return inserted, errors.Wrapf(err, "code %s", code)
		}
		batch = append(batch, *p)
		if len(batch) == cfg.BatchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}
