package countries

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/covid19-dash/casecast/internal/model"
)

//go:embed overrides.yaml
var defaultOverrides []byte

// ExtraCountry is a reference identity that the upstream table lacks.
type ExtraCountry struct {
	Name       string  `yaml:"name"`
	ISO2       string  `yaml:"iso2"`
	ISO3       string  `yaml:"iso3"`
	Lat        float64 `yaml:"lat"`
	Long       float64 `yaml:"long"`
	Population int64   `yaml:"population"`
}

// Identity converts the entry to a CountryIdentity.
func (e ExtraCountry) Identity() model.CountryIdentity {
	return model.CountryIdentity{
		Name:       e.Name,
		ISO2:       e.ISO2,
		ISO3:       e.ISO3,
		Population: e.Population,
		Lat:        e.Lat,
		Long:       e.Long,
	}
}

// Overrides is the allow-list that patches source names onto the reference table.
type Overrides struct {
	Aliases        map[string]string `yaml:"aliases"`
	Exclude        []string          `yaml:"exclude"`
	ExtraCountries []ExtraCountry    `yaml:"extra_countries"`
	Required       []string          `yaml:"required"`
	MinCountries   int               `yaml:"min_countries"`
}

// ParseOverrides decodes an overrides document.
func ParseOverrides(r io.Reader) (*Overrides, error) {
	var o Overrides
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		if err == io.EOF {
			return &o, nil
		}
		return nil, eris.Wrap(err, "countries: parse overrides")
	}
	for i, e := range o.ExtraCountries {
		if e.Name == "" || e.ISO3 == "" {
			return nil, eris.Errorf("countries: extra_countries[%d] needs name and iso3", i)
		}
	}
	if o.MinCountries < 0 {
		return nil, eris.Errorf("countries: min_countries must be >= 0, got %d", o.MinCountries)
	}
	return &o, nil
}

// DefaultOverrides returns the embedded overrides.
func DefaultOverrides() *Overrides {
	o, err := ParseOverrides(bytes.NewReader(defaultOverrides))
	if err != nil {
		panic(err)
	}
	return o
}

// LoadOverrides reads overrides from path, or returns the embedded default when path is empty.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return DefaultOverrides(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "countries: open overrides %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ParseOverrides(f)
}
