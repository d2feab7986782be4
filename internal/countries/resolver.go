// Package countries maps the country names used by case sources onto
// reference identities (ISO codes, coordinates, population).
package countries

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/covid19-dash/casecast/internal/model"
)

// Resolver joins raw source names to reference identities. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	byName   map[string]model.CountryIdentity
	byISO3   map[string]model.CountryIdentity
	aliases  map[string]string
	exclude  map[string]struct{}
	required []string
	min      int
	all      []model.CountryIdentity
}

func key(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NewResolver builds a Resolver from the reference identities plus the overrides.
// When two identities share a name the first one wins.
func NewResolver(reference []model.CountryIdentity, o *Overrides) *Resolver {
	if o == nil {
		o = &Overrides{}
	}
	r := &Resolver{
		byName:   make(map[string]model.CountryIdentity, len(reference)+len(o.ExtraCountries)),
		byISO3:   make(map[string]model.CountryIdentity, len(reference)+len(o.ExtraCountries)),
		aliases:  make(map[string]string, len(o.Aliases)),
		exclude:  make(map[string]struct{}, len(o.Exclude)),
		required: o.Required,
		min:      o.MinCountries,
	}

	add := func(id model.CountryIdentity) {
		id.Name = key(id.Name)
		if _, dup := r.byName[id.Name]; dup {
			return
		}
		r.byName[id.Name] = id
		if _, dup := r.byISO3[id.ISO3]; !dup {
			r.byISO3[id.ISO3] = id
		}
		r.all = append(r.all, id)
	}
	for _, id := range reference {
		add(id)
	}
	for _, e := range o.ExtraCountries {
		add(e.Identity())
	}
	for raw, canonical := range o.Aliases {
		r.aliases[key(raw)] = key(canonical)
	}
	for _, name := range o.Exclude {
		r.exclude[key(name)] = struct{}{}
	}

	sort.Slice(r.all, func(i, j int) bool { return r.all[i].ISO3 < r.all[j].ISO3 })
	return r
}

// Resolve maps a raw source name to its identity. Excluded names return
// ErrExcluded; names with no identity return *UnresolvedCountryError.
func (r *Resolver) Resolve(raw string) (model.CountryIdentity, error) {
	name := key(raw)
	if _, ok := r.exclude[name]; ok {
		return model.CountryIdentity{}, ErrExcluded
	}
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
		if _, ok := r.exclude[name]; ok {
			return model.CountryIdentity{}, ErrExcluded
		}
	}
	id, ok := r.byName[name]
	if !ok {
		return model.CountryIdentity{}, &UnresolvedCountryError{Names: []string{raw}}
	}
	return id, nil
}

// ResolveAll resolves every distinct name. Excluded names are absent from the
// result; all unresolved names are reported together.
func (r *Resolver) ResolveAll(rawNames []string) (map[string]model.CountryIdentity, error) {
	out := make(map[string]model.CountryIdentity, len(rawNames))
	seen := make(map[string]struct{}, len(rawNames))
	var unresolved []string
	for _, raw := range rawNames {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}

		id, err := r.Resolve(raw)
		switch {
		case err == nil:
			out[raw] = id
		case errors.Is(err, ErrExcluded):
			zap.L().Debug("countries: dropping excluded name", zap.String("name", raw))
		default:
			unresolved = append(unresolved, raw)
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, &UnresolvedCountryError{Names: unresolved}
	}
	return out, nil
}

// CheckCoverage resolves the observed names and verifies the merge kept
// enough countries, including every required one.
func (r *Resolver) CheckCoverage(rawNames []string) error {
	resolved, err := r.ResolveAll(rawNames)
	if err != nil {
		return err
	}

	found := make(map[string]struct{}, len(resolved))
	for _, id := range resolved {
		found[id.Name] = struct{}{}
	}

	gap := &CoverageGapError{Resolved: len(found), Min: r.min}
	for _, name := range r.required {
		if _, ok := found[key(name)]; !ok {
			gap.Missing = append(gap.Missing, name)
		}
	}
	if gap.Resolved < gap.Min || len(gap.Missing) > 0 {
		return gap
	}
	return nil
}

// Lookup returns the identity for an ISO3 code.
func (r *Resolver) Lookup(iso3 string) (model.CountryIdentity, bool) {
	id, ok := r.byISO3[iso3]
	return id, ok
}

// Identities returns every known identity sorted by ISO3.
func (r *Resolver) Identities() []model.CountryIdentity {
	out := make([]model.CountryIdentity, len(r.all))
	copy(out, r.all)
	return out
}
