package crawler

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"contact-scraper/pkg/models"
)

// SampleEmailLimit caps the sample list in the summary
const SampleEmailLimit = 10

// RenderSummary writes the operator summary: run totals, emails per target and a sample of emails
func RenderSummary(w io.Writer, report *models.CrawlReport) error {
	totals := table.NewWriter()
	totals.SetOutputMirror(w)
	totals.SetStyle(table.StyleLight)
	totals.SetTitle("Scraping Summary")
	totals.AppendRows([]table.Row{
		{"Targets discovered", report.TargetsDiscovered},
		{"Targets processed", report.TargetsProcessed},
		{"Targets succeeded", report.TargetsSucceeded},
		{"Records", len(report.Records)},
		{"Unique emails", len(report.UniqueEmails)},
		{"Unique phone numbers", len(report.UniquePhones)},
	})
	totals.Render()

	if len(report.Records) == 0 {
		return nil
	}

	perTarget := table.NewWriter()
	perTarget.SetOutputMirror(w)
	perTarget.SetStyle(table.StyleLight)
	perTarget.SetTitle("Emails per target")
	perTarget.AppendHeader(table.Row{"Target", "Emails"})
	for _, tc := range report.CountsByTarget() {
		perTarget.AppendRow(table.Row{tc.Name, tc.Count})
	}
	perTarget.Render()

	sample := report.SampleEmails(SampleEmailLimit)
	samples := table.NewWriter()
	samples.SetOutputMirror(w)
	samples.SetStyle(table.StyleLight)
	samples.SetTitle(fmt.Sprintf("Sample emails (%d of %d)", len(sample), len(report.UniqueEmails)))
	for i, email := range sample {
		samples.AppendRow(table.Row{i + 1, email})
	}
	samples.Render()
	return nil
}
