package model

import "time"

// RawCaseRow is one long-form observation as emitted by a source, before
// the country name has been resolved.
type RawCaseRow struct {
	Country string    `json:"country"`
	Metric  Metric    `json:"metric"`
	Date    time.Time `json:"date"`
	Count   int64     `json:"count"`
}

// CountryIdentity is one entry of the country reference table.
type CountryIdentity struct {
	Name       string  `json:"name"`
	ISO2       string  `json:"iso2,omitempty"`
	ISO3       string  `json:"iso3"`
	Population int64   `json:"population,omitempty"` // 0 when unknown
	Lat        float64 `json:"lat,omitempty"`
	Long       float64 `json:"long,omitempty"`
}

// Key returns the column key of the identity.
func (c CountryIdentity) Key() CountryKey {
	return CountryKey{ISO3: c.ISO3, Name: c.Name}
}

// CountryKey identifies one country column inside a metric block.
type CountryKey struct {
	ISO3 string `json:"iso3"`
	Name string `json:"name"`
}

// SeriesKey is the full composite column key of the wide table.
type SeriesKey struct {
	Metric Metric `json:"metric"`
	ISO3   string `json:"iso3"`
	Name   string `json:"name"`
}

// Country drops the metric component of the key.
func (k SeriesKey) Country() CountryKey {
	return CountryKey{ISO3: k.ISO3, Name: k.Name}
}

// Day truncates t to midnight UTC. All series dates are normalized this way.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
