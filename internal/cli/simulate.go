package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"flight-deals/internal/domain"
	"flight-deals/internal/ingest"
)

var (
	simulateAirline string
	simulateCabin   string
	simulatePrice   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <ORIGIN-DEST>",
	Short: "Evaluate a hypothetical price against a route's history without saving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin, destination, err := ingest.ParseRoute(args[0])
		if err != nil {
			return err
		}
		if simulateAirline == "" {
			return fmt.Errorf("--airline is required")
		}
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}

		route := domain.Route{
			Origin:      origin,
			Destination: destination,
			Airline:     strings.ToUpper(simulateAirline),
			CabinClass:  domain.CabinClass(strings.ToLower(simulateCabin)),
		}
		return getApp().Simulate(cmd.Context(), route, price)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAirline, "airline", "", "Airline code")
	simulateCmd.Flags().StringVar(&simulateCabin, "cabin", string(domain.CabinEconomy), "Cabin class (economy, premium_economy, business, first)")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Hypothetical fare")
}
