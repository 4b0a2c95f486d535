package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
)

const historyShown = 10

// HistoryOptions select the product and the optional exports.
type HistoryOptions struct {
	Key       string
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// History prints the recent price history of one product and optionally
// exports it as CSV (zstd-compressed for a .zst suffix) and/or a PNG chart.
func (a *App) History(ctx context.Context, out io.Writer, opts HistoryOptions) error {
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return errors.New("product key is required (format: source-sku)")
	}

	client := a.newCatalog()
	source, sku, err := a.resolveKey(ctx, client, key)
	if err != nil {
		return err
	}

	points, err := client.FetchHistory(ctx, source, sku)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintf(out, "no price history found for %s\n", key)
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})

	printHistory(out, key, points)

	exported := downsamplePoints(points, opts.MaxPoints)
	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, exported); err != nil {
			return err
		}
		a.log.Info().Str("path", opts.CSVPath).Int("points", len(exported)).Msg("history csv written")
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, key, exported); err != nil {
			return err
		}
		a.log.Info().Str("path", opts.PNGPath).Int("points", len(exported)).Msg("history chart written")
	}
	return nil
}

// resolveKey splits key using the sources currently present in the catalog.
// A catalog failure degrades to the first-dash split.
func (a *App) resolveKey(ctx context.Context, source catalog.Source, key string) (string, string, error) {
	var known []string
	if snaps, err := source.FetchSnapshots(ctx); err != nil {
		a.log.Warn().Err(err).Msg("catalog unavailable, splitting key on first dash")
	} else {
		seen := map[string]bool{}
		for _, s := range snaps {
			if !seen[s.Source] {
				seen[s.Source] = true
				known = append(known, s.Source)
			}
		}
	}

	src, sku, ok := catalog.SplitProductKey(key, known)
	if !ok {
		return "", "", fmt.Errorf("invalid product key %q (format: source-sku)", key)
	}
	return src, sku, nil
}

func printHistory(out io.Writer, key string, points []catalog.HistoricalPricePoint) {
	start := max(len(points)-historyShown, 0)
	fmt.Fprintf(out, "Price history for %s\n", key)
	for _, p := range points[start:] {
		fmt.Fprintf(out, "%s: $%s ($%s/TB)\n",
			p.RecordedAt.UTC().Format("2006-01-02"), p.PriceTotal.StringFixed(2), p.PricePerTB.StringFixed(2))
	}
	fmt.Fprintf(out, "Showing %d of %d records\n", len(points)-start, len(points))
}

func downsamplePoints(points []catalog.HistoricalPricePoint, limit int) []catalog.HistoricalPricePoint {
	if limit <= 1 || len(points) <= limit {
		return points
	}

	result := make([]catalog.HistoricalPricePoint, 0, limit)
	step := float64(len(points)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, points []catalog.HistoricalPricePoint) (err error) {
	if err = ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = file
	if strings.HasSuffix(path, ".zst") {
		enc, encErr := zstd.NewWriter(file)
		if encErr != nil {
			return fmt.Errorf("zstd writer: %w", encErr)
		}
		defer func() {
			if cerr := enc.Close(); err == nil {
				err = cerr
			}
		}()
		w = enc
	}

	return encodeHistoryCSV(w, points)
}

func encodeHistoryCSV(w io.Writer, points []catalog.HistoricalPricePoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"recorded_at", "price_total", "price_per_tb"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.RecordedAt.UTC().Format(time.RFC3339),
			p.PriceTotal.StringFixed(2),
			p.PricePerTB.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path, key string, points []catalog.HistoricalPricePoint) error {
	if len(points) < 2 {
		return errors.New("at least two history points are needed for a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	total := make([]float64, len(points))
	perTB := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.RecordedAt
		total[i] = p.PriceTotal.InexactFloat64()
		perTB[i] = p.PricePerTB.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Title:  key,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Total price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Price per TB",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Total",
				XValues: x,
				YValues: total,
			},
			chart.TimeSeries{
				Name:    "Per TB",
				XValues: x,
				YValues: perTB,
				YAxis:   chart.YAxisSecondary,
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
