package performance

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartConfig holds configuration for chart generation
type ChartConfig struct {
	OutputDir string
	// TopUnits limits the per-unit chart to the hottest units.
	TopUnits int
}

func DefaultChartConfig() *ChartConfig {
	return &ChartConfig{
		OutputDir: "results",
		TopUnits:  16,
	}
}

var modeOrder = []string{"pure", "cached", "dynarec"}

func orderedResults(results []*RunStats) []*RunStats {
	rank := func(m string) int {
		for i, o := range modeOrder {
			if o == m {
				return i
			}
		}
		return len(modeOrder)
	}
	out := append([]*RunStats(nil), results...)
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i].Mode) < rank(out[j].Mode) })
	return out
}

func seriesName(rs *RunStats) string {
	if rs.Mode == "dynarec" {
		return fmt.Sprintf("%s/%s", rs.Mode, rs.Backend)
	}
	return rs.Mode
}

func runtimeChart(report *Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Run time per mode",
			Subtitle: fmt.Sprintf("%s, %d runs each", report.Program, report.Runs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	var names []string
	var avg, min, max []opts.BarData
	for _, rs := range orderedResults(report.Results) {
		names = append(names, seriesName(rs))
		avg = append(avg, opts.BarData{Value: float64(rs.AvgNs) / 1e6})
		min = append(min, opts.BarData{Value: float64(rs.MinNs) / 1e6})
		max = append(max, opts.BarData{Value: float64(rs.MaxNs) / 1e6})
	}
	bar.SetXAxis(names).
		AddSeries("avg", avg).
		AddSeries("min", min).
		AddSeries("max", max)
	return bar
}

// exitsChart stacks the native code exits of every recompiler run by kind.
func exitsChart(report *Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Dispatcher traffic"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	results := orderedResults(report.Results)
	kinds := map[string]bool{}
	var names []string
	for _, rs := range results {
		names = append(names, seriesName(rs))
		for k := range rs.Stats.Exits {
			kinds[k] = true
		}
	}
	bar.SetXAxis(names)
	bar.AddSeries("dispatches", countSeries(results, func(rs *RunStats) uint64 { return rs.Stats.Dispatches }))
	var order []string
	for k := range kinds {
		order = append(order, k)
	}
	sort.Strings(order)
	for _, k := range order {
		k := k
		bar.AddSeries("exit "+k, countSeries(results, func(rs *RunStats) uint64 { return rs.Stats.Exits[k] }),
			charts.WithBarChartOpts(opts.BarChart{Stack: "exits"}))
	}
	return bar
}

func countSeries(results []*RunStats, get func(*RunStats) uint64) []opts.BarData {
	out := make([]opts.BarData, 0, len(results))
	for _, rs := range results {
		out = append(out, opts.BarData{Value: get(rs)})
	}
	return out
}

// unitsChart shows entries, compiles and helper exits of the hottest units of rs.
func unitsChart(rs *RunStats, top int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Hot units",
			Subtitle: seriesName(rs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	units := TopUnits(rs.Units, top)
	var names []string
	var entries, compiles, helpers, revalidations []opts.BarData
	for _, u := range units {
		names = append(names, fmt.Sprintf("%08x", u.Start))
		entries = append(entries, opts.BarData{Value: u.Entries})
		compiles = append(compiles, opts.BarData{Value: u.Compiles})
		helpers = append(helpers, opts.BarData{Value: u.Helpers})
		revalidations = append(revalidations, opts.BarData{Value: u.Revalidations + u.Retranslations})
	}
	bar.SetXAxis(names).
		AddSeries("entries", entries).
		AddSeries("compiles", compiles).
		AddSeries("helper exits", helpers).
		AddSeries("revalidations", revalidations)
	return bar
}

// RenderChart writes an HTML page with the charts of report to w.
func RenderChart(w io.Writer, report *Report, config *ChartConfig) error {
	if config == nil {
		config = DefaultChartConfig()
	}
	page := components.NewPage()
	page.AddCharts(runtimeChart(report), exitsChart(report))
	for _, rs := range orderedResults(report.Results) {
		if len(rs.Units) > 0 && rs.Mode != "pure" {
			page.AddCharts(unitsChart(rs, config.TopUnits))
		}
	}
	return page.Render(w)
}

// GenerateAllCharts renders report into <OutputDir>/<program>_profile.html and
// returns the file name.
func GenerateAllCharts(report *Report, config *ChartConfig) (string, error) {
	if config == nil {
		config = DefaultChartConfig()
	}
	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(config.OutputDir, filepath.Base(report.Program)+"_profile.html")
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := RenderChart(f, report, config); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", filename, err)
	}
	return filename, nil
}
