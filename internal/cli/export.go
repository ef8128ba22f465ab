package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flight-deals/internal/app"
	"flight-deals/internal/domain"
	"flight-deals/internal/ingest"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportAirline   string
	exportCabin     string
)

var exportCmd = &cobra.Command{
	Use:   "export <ORIGIN-DEST>",
	Short: "Export a route's price history as CSV and/or PNG chart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin, destination, err := ingest.ParseRoute(args[0])
		if err != nil {
			return err
		}
		if exportAirline == "" {
			return fmt.Errorf("--airline is required")
		}

		opts := app.ExportOptions{
			Route: domain.Route{
				Origin:      origin,
				Destination: destination,
				Airline:     strings.ToUpper(exportAirline),
				CabinClass:  domain.CabinClass(strings.ToLower(exportCabin)),
			},
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportAirline, "airline", "", "Airline code")
	exportCmd.Flags().StringVar(&exportCabin, "cabin", string(domain.CabinEconomy), "Cabin class")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive; defaults to the history window)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
