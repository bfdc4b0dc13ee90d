package prices

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/solarcharge/core/model"
)

// Response is the wholesale market payload. Prices are in EUR/MWh.
type Response struct {
	FrancePowerExchanges []Exchange `json:"france_power_exchanges"`
}

type Exchange struct {
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	UpdatedDate string  `json:"updated_date"`
	Values      []Value `json:"values"`
}

type Value struct {
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Value     float64 `json:"value"`
	Price     float64 `json:"price"`
}

// Intervals converts the exchange values into per kWh price intervals sorted
// by start time. Values without a positive length are skipped.
func (r *Response) Intervals(solarPrice float64) ([]model.PriceInterval, error) {
	var out []model.PriceInterval
	for _, ex := range r.FrancePowerExchanges {
		for _, v := range ex.Values {
			from, err := time.Parse(time.RFC3339, v.StartDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse start date: %w", err)
			}
			to, err := time.Parse(time.RFC3339, v.EndDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end date: %w", err)
			}
			if !to.After(from) {
				continue
			}
			out = append(out, model.PriceInterval{
				ValidFrom:  from.UTC(),
				ValidTo:    to.UTC(),
				SolarPrice: solarPrice,
				GridPrice:  v.Price / 1000,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out, nil
}

// PriceChartHTML renders the wholesale prices as an HTML line chart.
func (r *Response) PriceChartHTML() (string, error) {
	ps, err := r.Intervals(0)
	if err != nil {
		return "", err
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Wholesale price"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (UTC)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Price (EUR/kWh)"}),
	)

	xAxis := make([]string, 0, len(ps))
	yAxis := make([]opts.LineData, 0, len(ps))
	for _, p := range ps {
		xAxis = append(xAxis, p.ValidFrom.Format("2006-01-02 15:04"))
		yAxis = append(yAxis, opts.LineData{Value: p.GridPrice})
	}
	line.SetXAxis(xAxis).AddSeries("Price", yAxis)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.String(), nil
}
