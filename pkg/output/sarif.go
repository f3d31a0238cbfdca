package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sambabib/dependency-inspector/pkg/report"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

// SARIF format specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

// SarifReport represents the top-level SARIF report structure
type SarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SarifRun `json:"runs"`
}

// SarifRun represents a single run of the analysis tool
type SarifRun struct {
	Tool        SarifTool         `json:"tool"`
	Results     []SarifResult     `json:"results"`
	Invocations []SarifInvocation `json:"invocations"`
}

// SarifTool represents the tool that performed the analysis
type SarifTool struct {
	Driver SarifDriver `json:"driver"`
}

// SarifDriver represents the driver of the tool
type SarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []SarifRule `json:"rules"`
}

// SarifRule represents a rule that was evaluated during the analysis
type SarifRule struct {
	ID               string            `json:"id"`
	ShortDescription SarifMessage      `json:"shortDescription"`
	FullDescription  SarifMessage      `json:"fullDescription"`
	Help             SarifMessage      `json:"help"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// SarifResult represents a result of the analysis
type SarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   SarifMessage    `json:"message"`
	Locations []SarifLocation `json:"locations"`
}

// SarifMessage represents a message in the SARIF report
type SarifMessage struct {
	Text string `json:"text"`
}

// SarifLocation represents a location in the code
type SarifLocation struct {
	PhysicalLocation SarifPhysicalLocation `json:"physicalLocation"`
}

// SarifPhysicalLocation represents a physical location in the code
type SarifPhysicalLocation struct {
	ArtifactLocation SarifArtifactLocation `json:"artifactLocation"`
	Region           *SarifRegion          `json:"region,omitempty"`
}

// SarifArtifactLocation represents the location of an artifact
type SarifArtifactLocation struct {
	URI string `json:"uri"`
}

// SarifRegion represents a region in the code
type SarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

// SarifInvocation represents an invocation of the tool
type SarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	StartTimeUtc        string `json:"startTimeUtc"`
	EndTimeUtc          string `json:"endTimeUtc"`
}

// SarifOptions carries what the renderer needs beyond the document.
type SarifOptions struct {
	ArtifactURI string // lockfile the findings point at
	ToolVersion string
	Severity    SeverityFunc
	StartTime   time.Time
}

var sarifRules = []SarifRule{
	{
		ID:               "outdated-major",
		ShortDescription: SarifMessage{Text: "Major version update available"},
		FullDescription:  SarifMessage{Text: "A release outside the declared range is available for this dependency and may include breaking changes."},
		Help:             SarifMessage{Text: "Consider updating with caution and review the changelog for breaking changes."},
	},
	{
		ID:               "outdated-minor",
		ShortDescription: SarifMessage{Text: "Minor version update available"},
		FullDescription:  SarifMessage{Text: "A minor version update is available for this dependency, which may include new features."},
		Help:             SarifMessage{Text: "Consider updating to get new features."},
	},
	{
		ID:               "outdated-patch",
		ShortDescription: SarifMessage{Text: "Patch update available"},
		FullDescription:  SarifMessage{Text: "A patch update is available for this dependency, which may include bug fixes."},
		Help:             SarifMessage{Text: "Consider updating to get bug fixes."},
	},
	{
		ID:               "vulnerable",
		ShortDescription: SarifMessage{Text: "Vulnerable dependency"},
		FullDescription:  SarifMessage{Text: "The installed version of this dependency is affected by a published security advisory."},
		Help:             SarifMessage{Text: "Update to a version outside the vulnerable range."},
	},
}

// GenerateSarifReport converts the report document to SARIF format. Only
// packages with an available update or an advisory produce results.
func GenerateSarifReport(doc *report.Document, opts SarifOptions) ([]byte, error) {
	location := []SarifLocation{{
		PhysicalLocation: SarifPhysicalLocation{
			ArtifactLocation: SarifArtifactLocation{URI: opts.ArtifactURI},
		},
	}}

	results := make([]SarifResult, 0, len(doc.Packages))
	for _, p := range doc.Packages {
		if ruleID, ok := updateRule(p.UpdateType); ok && p.LatestVersion != nil {
			messageText := fmt.Sprintf("%s: current version %s, latest version %s",
				p.Name, p.CurrentVersion, *p.LatestVersion)
			if p.UpdateStatus != nil {
				messageText += fmt.Sprintf(" (%s)", *p.UpdateStatus)
			}
			results = append(results, SarifResult{
				RuleID:    ruleID,
				Level:     sarifLevel(severityFor(p.UpdateType, opts.Severity)),
				Message:   SarifMessage{Text: messageText},
				Locations: location,
			})
		}

		for _, v := range p.Vulnerabilities {
			messageText := fmt.Sprintf("%s@%s: %s %s", p.Name, p.CurrentVersion, v.ID, v.Title)
			if len(v.CVEs) > 0 {
				messageText += fmt.Sprintf(" (%s)", strings.Join(v.CVEs, ", "))
			}
			results = append(results, SarifResult{
				RuleID:    "vulnerable",
				Level:     advisoryLevel(v.Severity),
				Message:   SarifMessage{Text: messageText},
				Locations: location,
			})
		}
	}

	toolVersion := opts.ToolVersion
	if toolVersion == "" {
		toolVersion = "dev"
	}
	end := time.Now().UTC()
	start := opts.StartTime.UTC()
	if opts.StartTime.IsZero() {
		start = end
	}

	sarifReport := SarifReport{
		Schema:  "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json",
		Version: "2.1.0",
		Runs: []SarifRun{
			{
				Tool: SarifTool{
					Driver: SarifDriver{
						Name:           "depinspect",
						Version:        toolVersion,
						InformationURI: "https://github.com/sambabib/dependency-inspector",
						Rules:          sarifRules,
					},
				},
				Results: results,
				Invocations: []SarifInvocation{
					{
						ExecutionSuccessful: true,
						StartTimeUtc:        start.Format(time.RFC3339),
						EndTimeUtc:          end.Format(time.RFC3339),
					},
				},
			},
		},
	}

	return json.MarshalIndent(sarifReport, "", "  ")
}

func updateRule(t version.UpdateType) (string, bool) {
	switch t {
	case version.MajorUpdate:
		return "outdated-major", true
	case version.MinorUpdate:
		return "outdated-minor", true
	case version.PatchUpdate:
		return "outdated-patch", true
	default:
		return "", false
	}
}

// sarifLevel maps config severities onto SARIF levels.
func sarifLevel(severity string) string {
	switch severity {
	case "error":
		return "error"
	case "warning":
		return "warning"
	case "none", "ok":
		return "none"
	default:
		return "note"
	}
}

func advisoryLevel(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "error"
	case "moderate", "medium":
		return "warning"
	default:
		return "note"
	}
}
