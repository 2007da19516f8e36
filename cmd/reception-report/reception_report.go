// Command reception-report charts the reception success rate history
// the curator records: one line per ground station, percent of expected
// packets received over time, rendered as a standalone HTML page.
package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/urfave/cli/v2"

	"github.com/fisb-tools/fisb978/internal/harvest/store"
	"github.com/fisb-tools/fisb978/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "reception-report",
		Version: version.Version,
		Usage:   "chart per-station reception success rates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Value: "harvest.db",
				Usage: "harvest sqlite database `PATH`",
			},
			&cli.StringFlag{
				Name:  "out",
				Value: "reception-report.html",
				Usage: "output HTML `FILE`",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "chart only the most recent `N` rows (0 for all)",
			},
		},
		Action: runReport,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runReport(c *cli.Context) error {
	st, err := store.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.RSRHistory(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no reception history in %s", c.String("db"))
	}

	line := buildChart(rows)
	f, err := os.Create(c.String("out"))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d rows, %d stations)\n",
		c.String("out"), len(rows), countStations(rows))
	return nil
}

// buildChart lays the history out as one line per station over the
// union of report times. Windows a station missed chart as gaps.
func buildChart(rows []store.RSRRow) *charts.Line {
	type sample map[string]int // time label -> percent
	byStation := make(map[string]sample)
	labelSet := make(map[string]bool)
	for _, r := range rows {
		label := r.ReceivedTime.UTC().Format(time.RFC3339)
		labelSet[label] = true
		if byStation[r.Station] == nil {
			byStation[r.Station] = make(sample)
		}
		byStation[r.Station][label] = r.Percent
	}

	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	stations := make([]string, 0, len(byStation))
	for s := range byStation {
		stations = append(stations, s)
	}
	sort.Strings(stations)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "FIS-B reception success rate",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Reception success rate",
			Subtitle: fmt.Sprintf("%d report windows, %d stations", len(labels), len(stations)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "percent", Min: 0, Max: 100}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels)
	for _, station := range stations {
		data := make([]opts.LineData, len(labels))
		for i, l := range labels {
			if pct, ok := byStation[station][l]; ok {
				data[i] = opts.LineData{Value: pct}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(station, data)
	}
	return line
}

func countStations(rows []store.RSRRow) int {
	seen := make(map[string]bool)
	for _, r := range rows {
		seen[r.Station] = true
	}
	return len(seen)
}
