package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sambabib/dependency-inspector/pkg/report"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

// SeverityFunc maps an update magnitude to a severity name (error, warning, info).
type SeverityFunc func(version.UpdateType) string

// PrintTextReport writes the packages in a tabular text format
func PrintTextReport(out io.Writer, doc *report.Document, severity SeverityFunc) error {
	const notesLimit = 60 // Max characters for notes column

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) // minwidth, tabwidth, padding, padchar, flags

	fmt.Fprintln(w, "NAME\tCURRENT\tLATEST\tSTATUS\tSEVERITY\tGROUP\tVULNS\tNOTES")
	fmt.Fprintln(w, "----\t-------\t------\t------\t--------\t-----\t-----\t-----")

	for _, p := range doc.Packages {
		notes := notesFor(p)
		if len(notes) > notesLimit {
			notes = notes[:notesLimit-3] + "..."
		}
		notes = strings.ReplaceAll(notes, "\t", " ") // Replace tabs to avoid breaking alignment

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Name,
			p.CurrentVersion,
			orDash(p.LatestVersion),
			statusText(p.UpdateStatus),
			severityFor(p.UpdateType, severity),
			p.Group,
			len(p.Vulnerabilities),
			notes,
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if doc.HasVulnerabilities {
		fmt.Fprintln(out)
		for _, p := range doc.Packages {
			for _, v := range p.Vulnerabilities {
				fmt.Fprintf(out, "%s@%s: [%s] %s %s\n", p.Name, p.CurrentVersion, v.Severity, v.ID, v.Title)
			}
		}
	}
	return nil
}

func notesFor(p report.PackageReport) string {
	if len(p.RequiredBy) > 0 {
		return "required by " + strings.Join(p.RequiredBy, ", ")
	}
	return p.Description
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func statusText(s *version.UpdateStatus) string {
	if s == nil {
		return "-"
	}
	return string(*s)
}

func severityFor(t version.UpdateType, severity SeverityFunc) string {
	switch t {
	case "":
		return "-"
	case version.UpToDate:
		return "ok"
	case version.Unknown:
		return "unknown"
	}
	if severity == nil {
		return "info"
	}
	return severity(t)
}
