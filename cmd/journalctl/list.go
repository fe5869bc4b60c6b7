package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	moodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))
)

func newListCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list [user-id]",
		Short: "List users, or one user's entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(ctx context.Context, s *store, w io.Writer) error {
				if len(args) == 1 {
					list, err := s.Load(ctx, entries.Key(args[0]))
					if err != nil {
						return fmt.Errorf("load entries: %w", err)
					}
					printEntries(w, args[0], list)
					return nil
				}
				return listUsers(ctx, s, w)
			})
		},
	}
}

func listUsers(ctx context.Context, s *store, w io.Writer) error {
	lister, ok := s.Persister.(entries.Lister)
	if !ok {
		return fmt.Errorf("the %s store cannot list users", s.Name())
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No journals found"))
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d journal(s)", len(keys))))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tENTRIES\tLATEST")
	for _, key := range keys {
		list, err := s.Load(ctx, key)
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		latest := "-"
		if len(list) > 0 {
			latest = newest(list).CreatedAt.Local().Format(time.DateTime)
		}
		userID := strings.TrimPrefix(key, entries.KeyPrefix)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", idStyle.Render(userID), countStyle.Render(strconv.Itoa(len(list))), latest)
	}
	return tw.Flush()
}

func printEntries(w io.Writer, userID string, list []models.JournalEntry) {
	if len(list) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No entries for "+userID))
		return
	}
	sorted := append([]models.JournalEntry(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d entries for %s", len(sorted), userID)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tLENGTH\tMOOD")
	for _, e := range sorted {
		length := "-"
		switch {
		case e.DurationSeconds != nil:
			length = utils.FormatDuration(*e.DurationSeconds)
		case e.File != nil:
			length = utils.FormatFileSize(e.File.ByteSize)
		}
		mood := "-"
		if e.Summary != nil {
			mood = moodStyle.Render(string(e.Summary.Mood))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			idStyle.Render(strconv.FormatInt(e.ID, 10)),
			e.CreatedAt.Local().Format(time.DateTime),
			e.Source, length, mood)
	}
	_ = tw.Flush()
}

func newest(list []models.JournalEntry) models.JournalEntry {
	n := list[0]
	for _, e := range list[1:] {
		if e.CreatedAt.After(n.CreatedAt) {
			n = e
		}
	}
	return n
}
