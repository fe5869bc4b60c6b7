package summary

import (
	"strings"
	"time"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

const dateLayout = "Jan 2, 2006"

// FormatText renders the plain-text export of an entry's summary.
func FormatText(entry models.JournalEntry, s models.Summary, now time.Time) string {
	var b strings.Builder
	b.WriteString("Journal Entry Summary - " + entry.CreatedAt.Format(dateLayout) + "\n\n")

	b.WriteString("MAIN THOUGHTS:\n")
	writeBullets(&b, s.MainThoughts)

	b.WriteString("\nMOOD: " + string(s.Mood) + "\n\n")
	b.WriteString("KEY INSIGHTS:\n" + s.KeyInsights + "\n\n")

	b.WriteString("ACTION ITEMS:\n")
	writeBullets(&b, s.ActionItems)

	topics := "N/A"
	if len(s.Topics) > 0 {
		topics = strings.Join(s.Topics, ", ")
	}
	b.WriteString("\nTOPICS: " + topics + "\n\n")
	b.WriteString("Generated on " + now.Format(dateLayout))
	return b.String()
}

// ExportFilename is the download name for an entry's summary.
func ExportFilename(entry models.JournalEntry) string {
	return "journal-summary-" + entry.CreatedAt.UTC().Format("2006-01-02") + ".txt"
}

func writeBullets(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("• " + it + "\n")
	}
}
