package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// exportDoc is the document written by export.
type exportDoc struct {
	UserID  string                `json:"user_id" yaml:"user_id"`
	Stats   models.Stats          `json:"stats" yaml:"stats"`
	Entries []models.JournalEntry `json:"entries" yaml:"entries"`
}

func newExportCmd(flags *storeFlags) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Export a user's entries as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
			return withStore(cmd, flags, func(ctx context.Context, s *store, w io.Writer) error {
				list, err := s.Load(ctx, entries.Key(args[0]))
				if err != nil {
					return fmt.Errorf("load entries: %w", err)
				}
				data, err := encodeExport(format, exportDoc{
					UserID:  args[0],
					Stats:   entries.ComputeStats(list, nowFunc()),
					Entries: list,
				})
				if err != nil {
					return err
				}
				if output == "" {
					_, err = w.Write(data)
					return err
				}
				if err := renameio.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(list), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}

func encodeExport(format string, doc exportDoc) ([]byte, error) {
	if doc.Entries == nil {
		doc.Entries = []models.JournalEntry{}
	}
	if format == "yaml" {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}
