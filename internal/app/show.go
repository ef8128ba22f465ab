package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"flight-deals/internal/dispatch"
	"flight-deals/internal/storage"
)

// Show prints active deals, best discount first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	e, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	items, err := e.stores.ListDeals(ctx, storage.DealFilter{
		ActiveAt:     time.Now().UTC(),
		Origin:       strings.ToUpper(opts.Origin),
		Destination:  strings.ToUpper(opts.Destination),
		MinDiscount:  opts.MinDiscount,
		FeaturedOnly: opts.FeaturedOnly,
		Limit:        opts.Limit,
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.printf("no active deals found\n")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tRoute\tAirline\tCabin\tDeparture (UTC)\tDuration\tPrice\tRegular\tOff\tQuality\tFeatured\tExpires (UTC)")
	for _, d := range items {
		f := d.Flight
		featured := ""
		if d.Featured {
			featured = "*"
		}
		fmt.Fprintf(writer, "%d\t%s-%s\t%s\t%s\t%s\t%s\t%s %s\t%s\t%d%%\t%s\t%s\t%s\n",
			d.ID,
			f.Origin, f.Destination,
			f.Airline,
			f.CabinClass.Label(),
			f.DepartureTime.UTC().Format("2006-01-02 15:04"),
			dispatch.FormatDuration(f.DurationMinutes),
			f.Currency, f.Price.StringFixed(2),
			d.RegularPrice.StringFixed(2),
			d.DiscountPercentage,
			d.Quality,
			featured,
			d.ExpiresAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	return writer.Flush()
}
