package series

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covid19-dash/casecast/internal/countries"
	"github.com/covid19-dash/casecast/internal/model"
)

var (
	chn = model.CountryKey{ISO3: "CHN", Name: "China"}
	ita = model.CountryKey{ISO3: "ITA", Name: "Italy"}
	kor = model.CountryKey{ISO3: "KOR", Name: "South Korea"}
)

func testResolver() *countries.Resolver {
	ref := []model.CountryIdentity{
		{Name: "China", ISO3: "CHN"},
		{Name: "Italy", ISO3: "ITA"},
		{Name: "South Korea", ISO3: "KOR"},
	}
	return countries.NewResolver(ref, &countries.Overrides{
		Aliases: map[string]string{"Korea, South": "South Korea", "Holy See": "Italy"},
		Exclude: []string{"Cruise Ship"},
	})
}

func d(n int) time.Time {
	return time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func row(country string, m model.Metric, day int, count int64) model.RawCaseRow {
	return model.RawCaseRow{Country: country, Metric: m, Date: d(day), Count: count}
}

func testRows() []model.RawCaseRow {
	return []model.RawCaseRow{
		// out of order on purpose
		row("Italy", model.MetricConfirmed, 2, 30),
		row("Italy", model.MetricConfirmed, 0, 10),
		row("Italy", model.MetricConfirmed, 1, 20),
		row("Holy See", model.MetricConfirmed, 1, 1),
		row("Italy", model.MetricDeath, 0, 1),
		row("Italy", model.MetricDeath, 2, 3),
		row("Italy", model.MetricRecovered, 1, 2),
		row("Korea, South", model.MetricConfirmed, 1, 5),
		row("Korea, South", model.MetricConfirmed, 2, 7),
		row("China", model.MetricDeath, 2, 9),
		row("Cruise Ship", model.MetricConfirmed, 0, 700),
	}
}

func TestBuild_DatesStrictlyIncreasing(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)
	require.Equal(t, []time.Time{d(0), d(1), d(2)}, tbl.Dates)
	require.NoError(t, tbl.Validate(testResolver().Identities()))
}

func TestBuild_SumsDuplicatesAndAliases(t *testing.T) {
	rows := append(testRows(), row("Italy", model.MetricConfirmed, 2, 5))
	tbl, err := Build(rows, testResolver())
	require.NoError(t, err)

	confirmed, err := tbl.Block(model.MetricConfirmed)
	require.NoError(t, err)
	it, ok := confirmed.Series(ita)
	require.True(t, ok)
	// day 1 = Italy 20 + Holy See 1; day 2 = 30 + 5
	assert.Equal(t, []float64{10, 21, 35}, it)
}

func TestBuild_ForwardFillAndLeadingZero(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)

	death, err := tbl.Block(model.MetricDeath)
	require.NoError(t, err)
	it, _ := death.Series(ita)
	assert.Equal(t, []float64{1, 1, 3}, it, "gap on day 1 carries day 0 forward")

	confirmed, _ := tbl.Block(model.MetricConfirmed)
	kr, _ := confirmed.Series(kor)
	assert.Equal(t, []float64{0, 5, 7}, kr, "leading gap is zero")
}

func TestBuild_EveryBlockHasEveryColumn(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)

	assert.Equal(t, []model.Metric{model.MetricConfirmed, model.MetricDeath, model.MetricRecovered, model.MetricActive}, tbl.Metrics())
	for _, m := range tbl.Metrics() {
		b, err := tbl.Block(m)
		require.NoError(t, err)
		assert.Equal(t, []model.CountryKey{chn, ita, kor}, b.Columns, "metric %s", m)
		for _, col := range b.Values {
			assert.Len(t, col, 3)
		}
	}

	// China only reported deaths: confirmed column is all zero
	confirmed, _ := tbl.Block(model.MetricConfirmed)
	cn, _ := confirmed.Series(chn)
	assert.Equal(t, []float64{0, 0, 0}, cn)

	assert.Len(t, tbl.Columns(), 12)
	assert.Equal(t, model.SeriesKey{Metric: model.MetricConfirmed, ISO3: "CHN", Name: "China"}, tbl.Columns()[0])
}

func TestBuild_ActiveIsConfirmedMinusDeathMinusRecovered(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)

	confirmed, _ := tbl.Block(model.MetricConfirmed)
	death, _ := tbl.Block(model.MetricDeath)
	recovered, _ := tbl.Block(model.MetricRecovered)
	active, _ := tbl.Block(model.MetricActive)

	for c := range active.Columns {
		for i := range tbl.Dates {
			want := confirmed.Values[c][i] - death.Values[c][i] - recovered.Values[c][i]
			assert.Equal(t, want, active.Values[c][i])
		}
	}

	// negative values pass through
	cn, _ := active.Series(chn)
	assert.Equal(t, []float64{0, 0, -9}, cn)
}

func TestBuild_ActiveWithoutRecovered(t *testing.T) {
	rows := []model.RawCaseRow{
		row("Italy", model.MetricConfirmed, 0, 10),
		row("Italy", model.MetricDeath, 0, 4),
	}
	tbl, err := Build(rows, testResolver())
	require.NoError(t, err)

	_, err = tbl.Block(model.MetricRecovered)
	require.Error(t, err)

	active, err := tbl.Block(model.MetricActive)
	require.NoError(t, err)
	it, _ := active.Series(ita)
	assert.Equal(t, []float64{6}, it)
}

func TestBuild_UnresolvedNamesReportedTogether(t *testing.T) {
	rows := append(testRows(),
		row("Atlantis", model.MetricConfirmed, 0, 1),
		row("Narnia", model.MetricDeath, 0, 1),
	)
	_, err := Build(rows, testResolver())
	var unresolved *countries.UnresolvedCountryError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []string{"Atlantis", "Narnia"}, unresolved.Names)
}

func TestBuild_RejectsDerivedRows(t *testing.T) {
	_, err := Build([]model.RawCaseRow{row("Italy", model.MetricActive, 0, 1)}, testResolver())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derived metric")
}

func TestValidate_UnknownISO3(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)

	err = tbl.Validate([]model.CountryIdentity{{Name: "Italy", ISO3: "ITA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown iso3")
}

func TestBlock_Slice(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)
	confirmed, _ := tbl.Block(model.MetricConfirmed)

	s := confirmed.Slice(1, 3)
	assert.Equal(t, []time.Time{d(1), d(2)}, s.Dates)
	it, ok := s.Series(ita)
	require.True(t, ok)
	assert.Equal(t, []float64{21, 30}, it)

	assert.Equal(t, 0, confirmed.Slice(5, 9).Len())
	assert.Equal(t, 3, confirmed.Slice(-1, 99).Len())

	b := confirmed.Between(d(0), d(1))
	assert.Equal(t, []time.Time{d(0), d(1)}, b.Dates)
	assert.Equal(t, d(1), b.LastDate())
}

func TestBlock_SelectAndLookup(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)
	confirmed, _ := tbl.Block(model.MetricConfirmed)

	k, ok := confirmed.Lookup("KOR")
	require.True(t, ok)
	assert.Equal(t, kor, k)
	_, ok = confirmed.Lookup("USA")
	assert.False(t, ok)

	sel := confirmed.Select([]model.CountryKey{kor, {ISO3: "USA", Name: "United States"}})
	assert.Equal(t, []model.CountryKey{kor}, sel.Columns)
}

func TestTidyMostRecent(t *testing.T) {
	tbl, err := Build(testRows(), testResolver())
	require.NoError(t, err)
	confirmed, _ := tbl.Block(model.MetricConfirmed)

	rows := TidyMostRecent(confirmed)
	require.Len(t, rows, 3)
	assert.Equal(t, TidyRow{ISO3: "ITA", Name: "Italy", Date: d(2), Value: 30}, rows[0])
	assert.Equal(t, "KOR", rows[1].ISO3)
	assert.Equal(t, "CHN", rows[2].ISO3)

	top := MostAffected(confirmed, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "ITA", top[0].ISO3)
	assert.Len(t, MostAffected(confirmed, 10), 3)

	assert.Nil(t, TidyMostRecent(confirmed.Slice(0, 0)))
}
