package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

func newStatsCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show a user's dashboard figures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(ctx context.Context, s *store, w io.Writer) error {
				list, err := s.Load(ctx, entries.Key(args[0]))
				if err != nil {
					return fmt.Errorf("load entries: %w", err)
				}
				printStats(w, args[0], entries.ComputeStats(list, nowFunc()))
				return nil
			})
		},
	}
}

func printStats(w io.Writer, userID string, st models.Stats) {
	fmt.Fprintln(w, headerStyle.Render("Journal stats for "+userID))
	rows := []struct {
		label string
		value string
	}{
		{"Total entries", countStyle.Render(strconv.Itoa(st.TotalEntries))},
		{"This week", countStyle.Render(strconv.Itoa(st.ThisWeek))},
		{"Longest streak", countStyle.Render(strconv.Itoa(st.LongestStreak)) + " day(s)"},
		{"Average mood", moodStyle.Render(st.AvgMood)},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-15s %s\n", r.label, r.value)
	}
}
