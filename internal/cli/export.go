package cli

import (
	"github.com/spf13/cobra"

	"tokenomics-indexer/internal/app"
)

var (
	exportDays     string
	exportPNGPath  string
	exportCSVPath  string
	exportXLSXPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records as CSV, XLSX and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Days:     exportDays,
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
			XLSXPath: exportXLSXPath,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDays, "days", "", `Number of days to export or "all" (defaults to config)`)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write XLSX workbook")
}
