package cli

import (
	"github.com/spf13/cobra"

	"flight-deals/internal/app"
)

var showOpts app.ShowOptions

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List active deals, best discount first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), showOpts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showOpts.Limit, "limit", 20, "Number of deals to display")
	showCmd.Flags().StringVar(&showOpts.Origin, "origin", "", "Filter by origin airport")
	showCmd.Flags().StringVar(&showOpts.Destination, "destination", "", "Filter by destination airport")
	showCmd.Flags().IntVar(&showOpts.MinDiscount, "min-discount", 0, "Minimum discount percentage")
	showCmd.Flags().BoolVar(&showOpts.FeaturedOnly, "featured", false, "Only featured deals")
}
