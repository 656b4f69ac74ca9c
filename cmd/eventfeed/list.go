package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/views"
)

type listOptions struct {
	more     int
	date     string
	category string
	popular  bool
	refresh  bool
}

func newListCommand(load loadFunc) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch events once and print them as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			log, err := newLogger(cfg, "stderr")
			if err != nil {
				return err
			}
			defer log.Sync()

			f, err := buildFeed(cfg, log, nil)
			if err != nil {
				return err
			}

			date, err := domain.ParseDateFilter(opts.date)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			shown, err := f.coordinator.InitialFetch(ctx, opts.refresh)
			if err != nil {
				return err
			}

			for i := 0; i < opts.more && f.coordinator.HasMoreAvailable(); i++ {
				var added []domain.Event
				if opts.category == "" || opts.category == domain.CategoryAll {
					added, err = f.coordinator.LoadMore(ctx, domain.IDsOf(shown))
				} else {
					added, err = f.coordinator.LoadMoreInCategory(ctx, opts.category, domain.IDsOf(shown))
				}
				if err != nil {
					return err
				}
				shown = append(shown, added...)
			}

			filtered := views.Filter(shown, views.Query{
				Date:     date,
				Category: opts.category,
				Now:      time.Now(),
				Location: f.location,
			})
			if opts.popular {
				filtered = views.SortByPopularity(filtered)
			}

			renderEvents(cmd.OutOrStdout(), filtered)
			fmt.Fprintf(cmd.OutOrStdout(), "%d shown, about %d more available\n",
				len(filtered), f.coordinator.RemainingCount())
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.more, "more", 0, "number of load-more steps after the initial fetch")
	cmd.Flags().StringVar(&opts.date, "date", "all", "date filter: all, today or upcoming")
	cmd.Flags().StringVar(&opts.category, "category", domain.CategoryAll, "category filter")
	cmd.Flags().BoolVar(&opts.popular, "popular", false, "sort by popularity")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore any cached data")

	return cmd
}

func renderEvents(w io.Writer, events []domain.Event) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Source", "Date", "Time", "Title", "Category", "Location", "Cost", "Score"})

	for _, e := range events {
		t.AppendRow(table.Row{
			e.ID,
			e.Source,
			e.Date,
			e.Time,
			e.Title,
			e.Category,
			e.Location,
			e.Cost,
			e.PopularityScore,
		})
	}

	t.Render()
}
