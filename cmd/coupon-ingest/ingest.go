package main

import (
	"bufio"
	"context"
	"io"
	"math/bits"
	"os"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/till/internal/domain/coupon"
)

const (
	minCodeLen = 8
	maxCodeLen = 10
)

// ingestConfig tunes the two-pass scan.
type ingestConfig struct {
	// MinSources is how many distinct files must list a code.
	MinSources int
	// Capacity and FPR size each file's bloom filter.
	Capacity uint
	FPR      float64
}

// codeRule describes the discount for a known code prefix.
type codeRule struct {
	discountType coupon.DiscountType
	value        string
	minItems     int
	description  string
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {discountType: coupon.DiscountFreeLowest, value: "0", description: "Birthday: free lowest item"},
	"BUYGETON": {discountType: coupon.DiscountFreeLowest, value: "0", minItems: 2, description: "Lowest item free (buy 2+)"},
	"FIFTYOFF": {discountType: coupon.DiscountPercentage, value: "50", description: "50% off entire order"},
	"GNULINUX": {discountType: coupon.DiscountPercentage, value: "15", description: "Open source discount: 15% off"},
	"OVER9000": {discountType: coupon.DiscountFixed, value: "9", description: "9 off your order"},
	"HAPPYHRS": {discountType: coupon.DiscountPercentage, value: "18", description: "Happy Hours: 18% off"},
}

var defaultRule = codeRule{
	discountType: coupon.DiscountPercentage,
	value:        "10",
	description:  "Valid promo code: 10% off",
}

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// findCodes returns codes listed in at least cfg.MinSources of files, sorted.
// Pass one builds a bloom filter per file; pass two re-reads each file and
// records, per code, a bitmask of the files whose filters report it. False
// positives can only over-count, so each candidate is confirmed against its
// own file bit before counting.
func findCodes(ctx context.Context, lg *zap.Logger, files []string, cfg ingestConfig) ([]string, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("too many files: %d > %d", len(files), bits.UintSize)
	}
	if cfg.MinSources < 1 || cfg.MinSources > len(files) {
		return nil, errors.Errorf("min sources %d out of range [1, %d]", cfg.MinSources, len(files))
	}

	filters := make([]*bloom.BloomFilter, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.Capacity, cfg.FPR)
			n, err := streamGzFile(gCtx, path, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make([]map[string]uint, len(files))
	g, gCtx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			own := uint(1) << uint(i)
			found := make(map[string]uint)
			n, err := streamGzFile(gCtx, path, func(code string) {
				mask := own
				for j, f := range filters {
					if j != i && f.TestString(code) {
						mask |= uint(1) << uint(j)
					}
				}
				if bits.OnesCount(mask) >= cfg.MinSources {
					found[code] |= own
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Uint64("codes", n),
				zap.Int("candidates", len(found)),
			)
			masks[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Each file only sets its own bit, so the merged popcount counts files
	// that really contain the code.
	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= cfg.MinSources {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// streamGzFile calls fn for each code of valid length in a gzip file and
// returns how many it saw.
func streamGzFile(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	return scanCodes(ctx, gz, fn)
}

func scanCodes(ctx context.Context, r io.Reader, fn func(code string)) (uint64, error) {
	var n uint64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := strings.TrimSpace(scanner.Text())
		if !validLength(code) {
			continue
		}
		n++
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "scan")
	}
	return n, nil
}

// rulesFor builds coupon rules for codes, picking the discount by prefix.
func rulesFor(codes []string) ([]coupon.Rule, error) {
	rules := make([]coupon.Rule, 0, len(codes))
	for _, code := range codes {
		cr := defaultRule
		for prefix, r := range codeRules {
			if strings.HasPrefix(code, prefix) {
				cr = r
				break
			}
		}
		value, err := decimal.NewFromString(cr.value)
		if err != nil {
			return nil, errors.Wrapf(err, "parse value for %s", code)
		}
		rules = append(rules, coupon.Rule{
			Code:         coupon.NormalizeCode(code),
			DiscountType: cr.discountType,
			Value:        value,
			MinItems:     cr.minItems,
			Description:  cr.description,
		})
	}
	return rules, nil
}
