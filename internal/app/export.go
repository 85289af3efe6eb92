package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"tokenomics-indexer/internal/history"
	"tokenomics-indexer/internal/storage"
)

var exportHeader = []string{
	"date", "price_usd", "burned_supply", "burned_supply_usd",
	"treasury_supply", "treasury_supply_usd", "on_chain_liquidity_usd",
	"is_fallback", "fallback_from", "updated_at",
}

// Export renders stored records as CSV, PNG and/or XLSX in chronological order.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}

	days := opts.Days
	if days == "" {
		days = strconv.Itoa(a.Config.ResolveDays(0))
	}
	rng, err := parseExportRange(days)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reader := history.NewReader(store, history.Options{}, a.Logger)
	defer reader.Stop()

	result, err := reader.Recent(ctx, rng)
	if errors.Is(err, history.ErrNoRecords) {
		a.Logger.Info().Msg("no records found for export window")
		return nil
	}
	if err != nil {
		return err
	}

	records := chronological(result.Records)
	a.Logger.Info().Int("exported", len(records)).Str("days", rng.String()).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}
	if opts.XLSXPath != "" {
		if err := writeRecordsXLSX(opts.XLSXPath, records); err != nil {
			return err
		}
	}
	return nil
}

// parseExportRange accepts any positive day count, unlike the HTTP range.
func parseExportRange(raw string) (history.Range, error) {
	if raw == "all" {
		return history.Range{All: true}, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return history.Range{}, fmt.Errorf("invalid --days value %q", raw)
	}
	return history.Range{Days: days}, nil
}

func chronological(records []storage.DailyRecord) []storage.DailyRecord {
	out := append([]storage.DailyRecord(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func recordRow(rec storage.DailyRecord) []string {
	return []string{
		rec.Date,
		strconv.FormatFloat(rec.PriceUSD, 'f', -1, 64),
		rec.BurnedSupply,
		formatUSD(rec.BurnedSupplyUSD),
		rec.TreasurySupply,
		formatUSD(rec.TreasurySupplyUSD),
		formatUSD(rec.OnChainLiquidityUSD),
		strconv.FormatBool(rec.IsFallback),
		rec.FallbackFrom,
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeRecordsCSV(path string, records []storage.DailyRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeRecordsXLSX(path string, records []storage.DailyRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Tokenomics"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.Date,
			rec.PriceUSD,
			rec.BurnedSupply,
			rec.BurnedSupplyUSD,
			rec.TreasurySupply,
			rec.TreasurySupplyUSD,
			rec.OnChainLiquidityUSD,
			rec.IsFallback,
			rec.FallbackFrom,
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeRecordsPNG(path string, records []storage.DailyRecord) error {
	if len(records) < 2 {
		return errors.New("at least two records are required to render a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	price := make([]float64, len(records))
	burnedUSD := make([]float64, len(records))
	treasuryUSD := make([]float64, len(records))
	liquidity := make([]float64, len(records))

	for i, rec := range records {
		day, err := storage.ParseDate(rec.Date)
		if err != nil {
			return err
		}
		x[i] = day
		price[i] = rec.PriceUSD
		burnedUSD[i] = rec.BurnedSupplyUSD
		treasuryUSD[i] = rec.TreasurySupplyUSD
		liquidity[i] = rec.OnChainLiquidityUSD
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Burned USD", XValues: x, YValues: burnedUSD},
			chart.TimeSeries{Name: "Treasury USD", XValues: x, YValues: treasuryUSD},
			chart.TimeSeries{Name: "Liquidity USD", XValues: x, YValues: liquidity},
			chart.TimeSeries{Name: "Price", XValues: x, YValues: price, YAxis: chart.YAxisSecondary},
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
