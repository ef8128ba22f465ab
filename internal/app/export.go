package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"flight-deals/internal/domain"
	"flight-deals/internal/stats"
)

// Export writes a route's price history as CSV and/or a PNG chart with its average line.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if !opts.Route.CabinClass.Valid() {
		return &domain.ValidationError{Field: "cabin", Reason: "unknown cabin class"}
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-a.Config.Detection.HistoryWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	history, err := e.stores.ListObservations(ctx, opts.Route, from)
	if err != nil {
		return err
	}
	history = until(history, to)
	if len(history) == 0 {
		a.Logger.Info().Msg("no observations found for export window")
		return nil
	}

	statistics := stats.Compute(history)
	downsampled := downsample(history, opts.MaxPoints)
	a.Logger.Info().Int("total", len(history)).Int("exported", len(downsampled)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.Route, downsampled, statistics); err != nil {
			return err
		}
	}
	return nil
}

func until(history []domain.PriceObservation, to time.Time) []domain.PriceObservation {
	for i, obs := range history {
		if obs.ObservedAt.After(to) {
			return history[:i]
		}
	}
	return history
}

func downsample(history []domain.PriceObservation, max int) []domain.PriceObservation {
	if max <= 1 || len(history) <= max {
		return history
	}

	result := make([]domain.PriceObservation, 0, max)
	step := float64(len(history)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(history) {
			idx = len(history) - 1
		}
		result = append(result, history[idx])
	}
	return result
}

func writeHistoryCSV(path string, history []domain.PriceObservation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"observed_at", "origin", "destination", "airline", "cabin_class", "price", "currency"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, obs := range history {
		record := []string{
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.Origin,
			obs.Destination,
			obs.Airline,
			string(obs.CabinClass),
			obs.Price.StringFixed(2),
			obs.Currency,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, route domain.Route, history []domain.PriceObservation, statistics stats.Statistics) error {
	if len(history) < 2 {
		return errors.New("at least two observations are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(history))
	prices := make([]float64, len(history))
	average := make([]float64, len(history))
	for i, obs := range history {
		x[i] = obs.ObservedAt
		prices[i] = obs.Price.InexactFloat64()
		average[i] = statistics.Average
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  route.Origin + "-" + route.Destination + " " + route.Airline + " " + route.CabinClass.Label(),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (" + history[0].Currency + ")",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Observed",
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Average",
				XValues: x,
				YValues: average,
				Style: chart.Style{
					StrokeDashArray: []float64{5, 5},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
