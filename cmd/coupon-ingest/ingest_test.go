package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/till/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func testConfig(minSources int) ingestConfig {
	return ingestConfig{MinSources: minSources, Capacity: 1000, FPR: 0.0001}
}

func TestFindCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "couponbase1.gz", "HAPPYHRS01", "SHORT", "ONLYINONE1", "SHARED2345"),
		writeGz(t, dir, "couponbase2.gz", "HAPPYHRS01", "SHARED2345", "WAYTOOLONGCODE"),
		writeGz(t, dir, "couponbase3.gz", "HAPPYHRS01", "ONLYIN3333"),
	}
	lg := zaptest.NewLogger(t)

	t.Run("two sources", func(t *testing.T) {
		codes, err := findCodes(context.Background(), lg, files, testConfig(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"HAPPYHRS01", "SHARED2345"}, codes)
	})

	t.Run("three sources", func(t *testing.T) {
		codes, err := findCodes(context.Background(), lg, files, testConfig(3))
		require.NoError(t, err)
		assert.Equal(t, []string{"HAPPYHRS01"}, codes)
	})

	t.Run("one source keeps every valid length code", func(t *testing.T) {
		codes, err := findCodes(context.Background(), lg, files, testConfig(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"HAPPYHRS01", "ONLYIN3333", "ONLYINONE1", "SHARED2345"}, codes)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := findCodes(context.Background(), lg, files, testConfig(4))
		require.Error(t, err)
	})

	t.Run("duplicates within one file count once", func(t *testing.T) {
		dup := []string{
			writeGz(t, dir, "dup1.gz", "REPEATED01", "REPEATED01"),
			writeGz(t, dir, "dup2.gz", "OTHERCODE1"),
		}
		codes, err := findCodes(context.Background(), lg, dup, testConfig(2))
		require.NoError(t, err)
		assert.Empty(t, codes)
	})
}

func TestFindCodes_Canceled(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "CODEAAAA01"), writeGz(t, dir, "b.gz", "CODEAAAA01")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := findCodes(ctx, zaptest.NewLogger(t), files, testConfig(2))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRulesFor(t *testing.T) {
	rules, err := rulesFor([]string{"BUYGETON12", "OVER900042", "unknown01"})
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, coupon.DiscountFreeLowest, rules[0].DiscountType)
	assert.Equal(t, 2, rules[0].MinItems)

	assert.Equal(t, coupon.DiscountFixed, rules[1].DiscountType)
	assert.Equal(t, "9", rules[1].Value.String())

	assert.Equal(t, "UNKNOWN01", rules[2].Code)
	assert.Equal(t, coupon.DiscountPercentage, rules[2].DiscountType)
	assert.Equal(t, "10", rules[2].Value.String())
}
