package calibrate

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Report file names written by WriteReport.
const (
	ReportXLSX = "calibration.xlsx"
	ReportHTML = "calibration.html"
)

// WriteXLSX writes one row per score: window, size and the error per days ahead.
func WriteXLSX(w io.Writer, scores []Score) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("errors")
	if err != nil {
		return eris.Wrap(err, "calibrate: add sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("window")
	header.AddCell().SetString("size")
	for k := range horizonOf(scores) {
		header.AddCell().SetString("day_" + strconv.Itoa(k+1))
	}

	for _, s := range scores {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Window)
		row.AddCell().SetInt(s.Size)
		for _, e := range s.Errors {
			row.AddCell().SetFloat(e)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "calibrate: write xlsx")
	}
	return nil
}

// WriteChart renders the error against days ahead for every score as an HTML line chart.
func WriteChart(w io.Writer, scores []Score) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Window calibration",
			Width:     "1100px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Relative absolute error by days ahead"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Orient: "vertical", Right: "0"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "days ahead"}),
	)

	days := make([]string, horizonOf(scores))
	for k := range days {
		days[k] = strconv.Itoa(k + 1)
	}
	line.SetXAxis(days)

	for _, s := range scores {
		data := make([]opts.LineData, len(s.Errors))
		for k, e := range s.Errors {
			data[k] = opts.LineData{Value: e}
		}
		line.AddSeries(s.Window, data)
	}

	if err := line.Render(w); err != nil {
		return eris.Wrap(err, "calibrate: render chart")
	}
	return nil
}

// WriteReport writes the XLSX table and the HTML chart into dir and returns their paths.
func WriteReport(dir string, scores []Score) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "calibrate: create %s", dir)
	}

	writers := []struct {
		name  string
		write func(io.Writer, []Score) error
	}{
		{ReportXLSX, WriteXLSX},
		{ReportHTML, WriteChart},
	}

	var paths []string
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		f, err := os.Create(path)
		if err != nil {
			return nil, eris.Wrapf(err, "calibrate: create %s", path)
		}
		if err := wr.write(f, scores); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, eris.Wrapf(err, "calibrate: close %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func horizonOf(scores []Score) int {
	h := 0
	for _, s := range scores {
		h = max(h, len(s.Errors))
	}
	return h
}
