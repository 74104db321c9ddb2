// Package ingest bulk-loads voucher codes from gzip-compressed text files.
//
// Files are read concurrently and funnelled into a single writer. A bloom
// filter remembers the codes seen in this run; only codes it reports as
// possibly seen are looked up in the store, so the common case costs one
// insert per code and bloom false positives never drop a code.
package ingest

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

const progressEvery = 100_000

// Creator stores a new voucher.
type Creator interface {
	Create(ctx context.Context, in voucher.Input) (*voucher.Voucher, error)
}

// Finder looks a voucher up by its normalized code.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*voucher.Voucher, error)
}

// Stats summarises an import.
type Stats struct {
	Read       int
	Created    int
	Duplicates int
	Rejected   int
}

// Importer turns code lists into vouchers cut from a template.
type Importer struct {
	vouchers Creator
	lookup   Finder
	template voucher.Input
	seen     *bloom.BloomFilter
	lg       *slog.Logger
}

// New creates an Importer sized for about capacity distinct codes.
func New(vouchers Creator, lookup Finder, template voucher.Input, capacity uint, lg *slog.Logger) *Importer {
	return &Importer{
		vouchers: vouchers,
		lookup:   lookup,
		template: template,
		seen:     bloom.NewWithEstimates(max(capacity, 1), 0.001),
		lg:       lg,
	}
}

// Import reads every file and creates one voucher per distinct code. Blank
// lines and lines starting with '#' are skipped. Codes the voucher rules
// reject are counted, not fatal.
func (imp *Importer) Import(ctx context.Context, paths ...string) (Stats, error) {
	var stats Stats
	codes := make(chan string, 1024)

	g, ctx := errgroup.WithContext(ctx)
	var readers sync.WaitGroup
	for _, path := range paths {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			return readCodes(ctx, path, codes)
		})
	}
	go func() {
		readers.Wait()
		close(codes)
	}()
	g.Go(func() error {
		return imp.write(ctx, codes, &stats)
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (imp *Importer) write(ctx context.Context, codes <-chan string, stats *Stats) error {
	for code := range codes {
		stats.Read++
		if stats.Read%progressEvery == 0 {
			imp.lg.Info("import progress",
				slog.Int("read", stats.Read),
				slog.Int("created", stats.Created),
			)
		}

		if imp.seen.TestOrAddString(code) {
			_, err := imp.lookup.FindByCode(ctx, code)
			switch {
			case err == nil:
				stats.Duplicates++
				continue
			case !errors.Is(err, voucher.ErrNotFound):
				return errors.Wrapf(err, "look up %s", code)
			}
		}

		in := imp.template
		in.Code = code
		_, err := imp.vouchers.Create(ctx, in)
		switch {
		case err == nil:
			stats.Created++
		case errors.Is(err, voucher.ErrDuplicateCode):
			stats.Duplicates++
		case fault.KindOf(err) == fault.InvalidInput:
			stats.Rejected++
			imp.lg.Debug("code rejected", slog.String("code", code), slog.String("reason", fault.MessageOf(err)))
		default:
			return errors.Wrapf(err, "create %s", code)
		}
	}
	return nil
}

// readCodes streams normalized codes from a gzip file into out.
func readCodes(ctx context.Context, path string, out chan<- string) error {
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
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		select {
		case out <- discount.NormalizeCode(line):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
