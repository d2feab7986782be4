package countries

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/fetcher"
	"github.com/covid19-dash/casecast/internal/model"
)

// Reference table column names.
const (
	ColCountry    = "Country"
	ColAlpha2     = "Alpha-2 code"
	ColAlpha3     = "Alpha-3 code"
	ColLatitude   = "Latitude (average)"
	ColLongitude  = "Longitude (average)"
	ColPopulation = "Population"
)

// cleanCell strips the padding and quoting the reference table carries around values.
func cleanCell(s string) string {
	return strings.Trim(s, `. "`)
}

// LoadReference parses the reference country table.
func LoadReference(ctx context.Context, r io.Reader) ([]model.CountryIdentity, error) {
	tbl, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrap(err, "countries: read reference")
	}

	idx := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		idx[cleanCell(h)] = i
	}
	for _, col := range []string{ColCountry, ColAlpha2, ColAlpha3, ColLatitude, ColLongitude} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("countries: reference missing column %q", col)
		}
	}
	popCol, hasPop := idx[ColPopulation]

	out := make([]model.CountryIdentity, 0, len(tbl.Rows))
	for n, row := range tbl.Rows {
		id := model.CountryIdentity{
			Name: cleanCell(fetcher.Cell(row, idx[ColCountry])),
			ISO2: cleanCell(fetcher.Cell(row, idx[ColAlpha2])),
			ISO3: cleanCell(fetcher.Cell(row, idx[ColAlpha3])),
		}
		if id.Name == "" || id.ISO3 == "" {
			continue
		}
		if id.Lat, err = parseFloat(fetcher.Cell(row, idx[ColLatitude])); err != nil {
			return nil, eris.Wrapf(err, "countries: reference row %d latitude", n+2)
		}
		if id.Long, err = parseFloat(fetcher.Cell(row, idx[ColLongitude])); err != nil {
			return nil, eris.Wrapf(err, "countries: reference row %d longitude", n+2)
		}
		if hasPop {
			if v := cleanCell(fetcher.Cell(row, popCol)); v != "" {
				p, perr := strconv.ParseFloat(v, 64)
				if perr != nil {
					return nil, eris.Wrapf(perr, "countries: reference row %d population", n+2)
				}
				id.Population = int64(p)
			}
		}
		out = append(out, id)
	}

	if len(out) == 0 {
		return nil, eris.New("countries: reference table is empty")
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	v := cleanCell(s)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %q", s)
	}
	return f, nil
}

// Load downloads the reference table and builds a Resolver with the overrides at overridesPath.
func Load(ctx context.Context, f fetcher.Fetcher, referenceURL, overridesPath string) (*Resolver, error) {
	overrides, err := LoadOverrides(overridesPath)
	if err != nil {
		return nil, err
	}

	body, err := f.Download(ctx, referenceURL)
	if err != nil {
		return nil, eris.Wrap(err, "countries: download reference")
	}
	defer body.Close() //nolint:errcheck

	ref, err := LoadReference(ctx, body)
	if err != nil {
		return nil, err
	}
	return NewResolver(ref, overrides), nil
}
