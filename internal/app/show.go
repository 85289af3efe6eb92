package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"tokenomics-indexer/internal/history"
)

// Show prints the most recent stored records.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reader := history.NewReader(store, history.Options{}, a.Logger)
	defer reader.Stop()

	result, err := reader.Recent(ctx, history.Range{Days: opts.Limit})
	if errors.Is(err, history.ErrNoRecords) {
		fmt.Fprintln(out, "no records found")
		return nil
	}
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tPrice USD\tBurned\tBurned USD\tTreasury\tTreasury USD\tLiquidity USD\tFallback")

	for _, rec := range result.Records {
		fallback := ""
		if rec.IsFallback {
			fallback = "from " + rec.FallbackFrom
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Date,
			strconv.FormatFloat(rec.PriceUSD, 'f', -1, 64),
			rec.BurnedSupply,
			formatUSD(rec.BurnedSupplyUSD),
			rec.TreasurySupply,
			formatUSD(rec.TreasurySupplyUSD),
			formatUSD(rec.OnChainLiquidityUSD),
			fallback,
		)
	}

	return writer.Flush()
}

func formatUSD(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
