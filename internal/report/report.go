// Package report renders an HTML activity summary over a harvested result.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	echartstypes "github.com/go-echarts/go-echarts/v2/types"

	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// scoreBuckets edges the score histogram; the last bucket is open.
var scoreBuckets = []int64{0, 1, 10, 50, 100, 500, 1000}

// Write renders the activity charts for the given records to w.
func Write(w io.Writer, title string, records []*types.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to report")
	}

	if err := activityChart(title, records).Render(w); err != nil {
		return fmt.Errorf("render activity chart: %w", err)
	}
	if err := scoreChart(records).Render(w); err != nil {
		return fmt.Errorf("render score chart: %w", err)
	}
	return nil
}

// activityChart counts records per UTC day.
func activityChart(title string, records []*types.Record) *charts.Bar {
	perDay := make(map[string]int)
	for _, r := range records {
		day := time.Unix(r.CreatedUTC, 0).UTC().Format("2006-01-02")
		perDay[day]++
	}
	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)

	values := make([]opts.BarData, 0, len(days))
	for _, day := range days {
		values = append(values, opts.BarData{Value: perDay[day]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "Records per day"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: echartstypes.ThemeWesteros}),
	)
	bar.SetXAxis(days).AddSeries("Records", values)
	return bar
}

// scoreChart buckets records by score.
func scoreChart(records []*types.Record) *charts.Bar {
	counts := make([]int, len(scoreBuckets))
	for _, r := range records {
		idx := 0
		for i, edge := range scoreBuckets {
			if r.Score >= edge {
				idx = i
			}
		}
		counts[idx]++
	}

	labels := make([]string, len(scoreBuckets))
	values := make([]opts.BarData, len(scoreBuckets))
	for i, edge := range scoreBuckets {
		if i == len(scoreBuckets)-1 {
			labels[i] = fmt.Sprintf("%d+", edge)
		} else {
			labels[i] = fmt.Sprintf("%d-%d", edge, scoreBuckets[i+1]-1)
		}
		values[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Score distribution"}))
	bar.SetXAxis(labels).AddSeries("Records", values)
	return bar
}
