package countries

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExcluded is returned by Resolve for names on the exclude list.
var ErrExcluded = errors.New("countries: name is excluded")

// UnresolvedCountryError lists source names with no reference identity.
type UnresolvedCountryError struct {
	Names []string
}

func (e *UnresolvedCountryError) Error() string {
	return fmt.Sprintf("countries: %d unresolved name(s): %s", len(e.Names), strings.Join(e.Names, ", "))
}

// CoverageGapError reports a merge that resolved too few countries or missed a required one.
type CoverageGapError struct {
	Resolved int
	Min      int
	Missing  []string
}

func (e *CoverageGapError) Error() string {
	var parts []string
	if e.Resolved < e.Min {
		parts = append(parts, fmt.Sprintf("resolved %d countries, need at least %d", e.Resolved, e.Min))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required: "+strings.Join(e.Missing, ", "))
	}
	return "countries: coverage gap: " + strings.Join(parts, "; ")
}
