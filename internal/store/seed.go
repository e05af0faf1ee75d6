package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// csvRow is one line of the store locations file.
type csvRow struct {
	Name      string  `csv:"Store Name"`
	Address   string  `csv:"Address"`
	Latitude  float64 `csv:"Latitude"`
	Longitude float64 `csv:"Longitude"`
}

// ParseCSV decodes store rows. IDs are assigned from the row position as
// "100" followed by the zero-based index.
func ParseCSV(r io.Reader) ([]Store, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []Store{}, nil
		}
		return nil, eris.Wrap(err, "store: read csv header")
	}

	title := cases.Title(language.English)
	out := []Store{}
	for idx := 0; ; idx++ {
		var row csvRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "store: decode csv row %d", idx+1)
		}

		out = append(out, Store{
			ID:      fmt.Sprintf("100%d", idx),
			Name:    normalizeName(title, row.Name),
			Address: collapseSpace(row.Address),
			Lat:     row.Latitude,
			Lng:     row.Longitude,
		})
	}
	return out, nil
}

// normalizeName collapses whitespace and title-cases names written in
// all capitals. Mixed-case names are kept as written.
func normalizeName(title cases.Caser, s string) string {
	s = collapseSpace(s)
	if s != strings.ToUpper(s) {
		return s
	}
	return title.String(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SeedCSV loads stores from r into an empty catalog. A catalog that already
// has stores is left untouched and 0 is returned.
func SeedCSV(ctx context.Context, cat Catalog, r io.Reader) (int64, error) {
	n, err := cat.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("store: catalog already seeded", zap.Int("stores", n))
		return 0, nil
	}

	stores, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	inserted, err := cat.Upsert(ctx, stores)
	if err != nil {
		return 0, eris.Wrap(err, "store: seed")
	}
	zap.L().Info("store: seeding complete", zap.Int64("stores", inserted))
	return inserted, nil
}

// SeedFile seeds from a CSV path. A missing file is logged and skipped.
func SeedFile(ctx context.Context, cat Catalog, path string) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("store: seed file not found, skipping", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "store: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return SeedCSV(ctx, cat, f)
}
