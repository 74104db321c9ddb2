package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
	"github.com/xenking/voucher-engine/internal/storage/memory"
)

func writeGz(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codes.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func template() voucher.Input {
	return voucher.Input{
		DiscountType:   discount.Percentage,
		DiscountValue:  decimal.NewFromInt(10),
		ExpirationDate: time.Now().Add(24 * time.Hour),
		UsageLimit:     5,
	}
}

func newImporter(capacity uint) (*Importer, voucher.Repository, *voucher.Service) {
	repo := memory.New().Vouchers()
	svc := voucher.NewService(repo)
	return New(svc, repo, template(), capacity, slog.New(slog.DiscardHandler)), repo, svc
}

func TestImport(t *testing.T) {
	imp, repo, svc := newImporter(1000)
	ctx := context.Background()

	existing := template()
	existing.Code = "EXIST1"
	_, err := svc.Create(ctx, existing)
	require.NoError(t, err)

	first := writeGz(t, "abc123", "ZZZ999", "# comment", "", "x")
	second := writeGz(t, " ABC123 ", "new777", "exist1")

	stats, err := imp.Import(ctx, first, second)
	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 6, Created: 3, Duplicates: 2, Rejected: 1}, stats)

	for _, code := range []string{"ABC123", "ZZZ999", "NEW777"} {
		v, err := repo.FindByCode(ctx, code)
		require.NoError(t, err, code)
		assert.Equal(t, 5, v.UsageLimit)
		assert.True(t, v.IsActive)
	}
}

func TestImport_ExactUnderFalsePositives(t *testing.T) {
	// A one-element filter reports almost everything as seen.
	imp, _, _ := newImporter(1)

	lines := make([]string, 200)
	for i := range lines {
		lines[i] = fmt.Sprintf("CODE%04d", i)
	}
	stats, err := imp.Import(context.Background(), writeGz(t, lines...), writeGz(t, lines[:50]...))
	require.NoError(t, err)
	assert.Equal(t, 250, stats.Read)
	assert.Equal(t, 200, stats.Created)
	assert.Equal(t, 50, stats.Duplicates)
}

func TestImport_MissingFile(t *testing.T) {
	imp, _, _ := newImporter(10)
	_, err := imp.Import(context.Background(), filepath.Join(t.TempDir(), "missing.gz"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}

func TestImport_NotGzip(t *testing.T) {
	imp, _, _ := newImporter(10)
	path := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(path, []byte("ABC123\n"), 0o600))

	_, err := imp.Import(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip reader")
}
