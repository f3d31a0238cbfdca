package output

import (
	"encoding/json"

	"github.com/sambabib/dependency-inspector/pkg/report"
)

// GenerateJSONReport renders the report document as indented JSON
func GenerateJSONReport(doc *report.Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
