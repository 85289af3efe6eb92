package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tokenomics-indexer/internal/config"
	"tokenomics-indexer/internal/service"
	"tokenomics-indexer/internal/storage"
)

func testApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token:\n  denom: uatom\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return NewApp(cfg, zerolog.Nop())
}

func sampleRecords() []storage.DailyRecord {
	updated := time.Date(2026, 10, 14, 0, 5, 0, 0, time.UTC)
	return []storage.DailyRecord{
		{Date: "2026-10-14", BurnedSupply: "200", TreasurySupply: "20", PriceUSD: 0.2, BurnedSupplyUSD: 40, TreasurySupplyUSD: 4, OnChainLiquidityUSD: 1000, UpdatedAt: updated},
		{Date: "2026-10-12", BurnedSupply: "100", TreasurySupply: "10", PriceUSD: 0.1, BurnedSupplyUSD: 10, TreasurySupplyUSD: 1, OnChainLiquidityUSD: 900, UpdatedAt: updated, IsFallback: true, FallbackFrom: "2026-10-11"},
		{Date: "2026-10-13", BurnedSupply: "150", TreasurySupply: "15", PriceUSD: 0.15, BurnedSupplyUSD: 22.5, TreasurySupplyUSD: 2.25, OnChainLiquidityUSD: 950, UpdatedAt: updated},
	}
}

func TestChronologicalSortsOldestFirst(t *testing.T) {
	records := sampleRecords()
	sorted := chronological(records)

	require.Len(t, sorted, 3)
	assert.Equal(t, "2026-10-12", sorted[0].Date)
	assert.Equal(t, "2026-10-14", sorted[2].Date)
	assert.Equal(t, "2026-10-14", records[0].Date, "input must not be reordered")
}

func TestParseExportRange(t *testing.T) {
	rng, err := parseExportRange("all")
	require.NoError(t, err)
	assert.True(t, rng.All)

	rng, err = parseExportRange("45")
	require.NoError(t, err)
	assert.Equal(t, 45, rng.Days)

	for _, raw := range []string{"0", "-3", "week"} {
		_, err := parseExportRange(raw)
		assert.Error(t, err, raw)
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.csv")
	require.NoError(t, writeRecordsCSV(path, chronological(sampleRecords())))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "2026-10-12", rows[1][0])
	assert.Equal(t, "10.00", rows[1][3])
	assert.Equal(t, "true", rows[1][7])
	assert.Equal(t, "2026-10-11", rows[1][8])
	assert.Equal(t, "2026-10-14T00:05:00Z", rows[3][9])
}

func TestWriteRecordsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")
	require.NoError(t, writeRecordsXLSX(path, chronological(sampleRecords())))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Tokenomics")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "date", rows[0][0])
	assert.Equal(t, "2026-10-13", rows[2][0])
	assert.Equal(t, "150", rows[2][2])
}

func TestWriteRecordsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, writeRecordsPNG(path, chronological(sampleRecords())))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	err = writeRecordsPNG(filepath.Join(t.TempDir(), "one.png"), sampleRecords()[:1])
	assert.Error(t, err)
}

func TestExportRequiresOutput(t *testing.T) {
	err := testApp(t).Export(context.Background(), ExportOptions{Days: "7"})
	assert.Error(t, err)
}

func TestSimulateValidValuesDoNotPersist(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer

	err := a.Simulate(context.Background(), &out, SimulateOptions{
		BurnedSupply:        "1000",
		TreasurySupply:      "50",
		PriceUSD:            0.5,
		OnChainLiquidityUSD: 1200,
	})
	require.NoError(t, err)

	var outcome service.Outcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, service.StatusStored, outcome.Status)
	assert.Contains(t, outcome.URL, "dry-run://")
	require.NotNil(t, outcome.Data)
	assert.Equal(t, 500.0, outcome.Data.BurnedSupplyUSD)
}

func TestSimulateInvalidPriceWithoutHistoryFails(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer

	err := a.Simulate(context.Background(), &out, SimulateOptions{
		BurnedSupply:   "1000",
		TreasurySupply: "50",
		PriceUSD:       5000,
	})
	require.NoError(t, err)

	var outcome service.Outcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	assert.False(t, outcome.Success)
	assert.Equal(t, service.StatusFailed, outcome.Status)
}

func TestDryRunStoreNeverWrites(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecordStore(storage.NewMemoryBlobStore(""), "tokenomics", 0)
	dry := &dryRunStore{RecordStore: records}

	url, created, err := dry.Save(ctx, storage.DailyRecord{Date: "2026-10-14", BurnedSupply: "1", TreasurySupply: "1", PriceUSD: 1}, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "dry-run://tokenomics-2026-10-14.json", url)

	date, _ := storage.ParseDate("2026-10-14")
	exists, err := records.Exists(ctx, date)
	require.NoError(t, err)
	assert.False(t, exists)
}
