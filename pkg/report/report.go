// Package report assembles the walked graph, probe results and advisories into
// the document consumed by renderers.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/sambabib/dependency-inspector/pkg/audit"
	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
	"github.com/sambabib/dependency-inspector/pkg/probe"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

// ErrInvalidGraph is returned when the resolved graph cannot be used at all.
var ErrInvalidGraph = errors.New("invalid resolved graph")

// PackageReport is the report line for one package.
type PackageReport struct {
	Name            string                `json:"name"`
	CurrentVersion  string                `json:"current_version"`
	LatestVersion   *string               `json:"latest_version"`
	UpdateStatus    *version.UpdateStatus `json:"update_status"`
	UpdateType      version.UpdateType    `json:"update_type,omitempty"`
	Group           graph.Group           `json:"group"`
	Description     string                `json:"description"`
	License         string                `json:"license,omitempty"`
	Dependencies    map[string]string     `json:"dependencies"`
	RequiredBy      []string              `json:"required_by"`
	Vulnerabilities []audit.Advisory      `json:"vulnerabilities"`
}

// Config echoes the switches that shaped a run.
type Config struct {
	ShowLatest        bool   `json:"show_latest"`
	ShowAll           bool   `json:"show_all"`
	ShowVulnerability bool   `json:"show_vulnerability"`
	PackageManager    string `json:"package_manager"`
}

// Document is the complete, self-contained report.
type Document struct {
	Groups             []graph.Group   `json:"groups"`
	TopLevelPackages   []string        `json:"top_level_packages"`
	Packages           []PackageReport `json:"packages"`
	Config             Config          `json:"config"`
	HasVulnerabilities bool            `json:"has_vulnerabilities"`
}

// Prober is the part of probe.Probe the assembler uses.
type Prober interface {
	Run(ctx context.Context, d graph.Descriptor, current string) probe.Result
}

// Options selects the enrichments of a run.
type Options struct {
	ShowLatest        bool
	ShowAll           bool // walk every transitive package and fill required_by
	ShowVulnerability bool
	Ignore            func(name string) bool
}

// Assembler builds Documents. Prober and Fetcher may be nil when the matching
// option is off.
type Assembler struct {
	opts    Options
	prober  Prober
	auditor audit.Fetcher
}

func NewAssembler(opts Options, prober Prober, auditor audit.Fetcher) *Assembler {
	return &Assembler{opts: opts, prober: prober, auditor: auditor}
}

// Assemble walks g and enriches every package. Per-package failures only
// degrade that package; a nil or malformed graph is an error.
func (a *Assembler) Assemble(ctx context.Context, g *graph.Graph) (*Document, error) {
	if err := validate(g); err != nil {
		return nil, err
	}

	mode := graph.DirectOnly
	if a.opts.ShowAll {
		mode = graph.AllTransitive
	}
	entries := graph.Walk(*g, graph.WalkOptions{Mode: mode, Ignore: a.opts.Ignore})
	logger.Debugf("Walked %d packages (%s)", len(entries), mode)

	doc := &Document{
		Groups:           []graph.Group{},
		TopLevelPackages: graph.TopLevelNames(graph.TopLevel(g.Declared)),
		Packages:         make([]PackageReport, 0, len(entries)),
		Config: Config{
			ShowLatest:        a.opts.ShowLatest,
			ShowAll:           a.opts.ShowAll,
			ShowVulnerability: a.opts.ShowVulnerability,
			PackageManager:    g.PackageManager,
		},
	}

	seenGroups := make(map[graph.Group]bool)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pr := a.packageReport(ctx, e)
		if !seenGroups[pr.Group] {
			seenGroups[pr.Group] = true
			doc.Groups = append(doc.Groups, pr.Group)
		}
		if len(pr.Vulnerabilities) > 0 {
			doc.HasVulnerabilities = true
		}
		doc.Packages = append(doc.Packages, pr)
	}
	graph.SortGroups(doc.Groups)
	return doc, nil
}

func (a *Assembler) packageReport(ctx context.Context, e graph.Entry) PackageReport {
	name := e.Package.Name()
	logger.Infof("Generating report for %s", name)

	pr := PackageReport{
		Name:            name,
		CurrentVersion:  version.StripSpecifier(e.Package.Version),
		Group:           e.Group,
		Description:     e.Package.Description,
		License:         e.Package.License,
		Dependencies:    dependencyMap(e.Package.Dependencies),
		RequiredBy:      e.RequiredBy,
		Vulnerabilities: []audit.Advisory{},
	}
	if pr.RequiredBy == nil {
		pr.RequiredBy = []string{}
	}

	if a.opts.ShowLatest && a.prober != nil {
		logger.Infof("   ↳ Fetching latest version...")
		res := a.prober.Run(ctx, e.Descriptor, pr.CurrentVersion)
		if res.LatestVersion != "" {
			latest := res.LatestVersion
			pr.LatestVersion = &latest
		}
		if res.Status != "" {
			status := res.Status
			pr.UpdateStatus = &status
		}
	}

	if pr.LatestVersion != nil {
		pr.UpdateType = version.Classify(pr.CurrentVersion, *pr.LatestVersion)
	}

	if a.opts.ShowVulnerability && a.auditor != nil {
		logger.Infof("   ↳ Fetching vulnerability report ...")
		advisories, err := a.auditor.Fetch(ctx, name, pr.CurrentVersion)
		if err != nil {
			logger.Warnf("Vulnerability lookup for %s@%s failed: %v", name, pr.CurrentVersion, err)
		} else if advisories != nil {
			pr.Vulnerabilities = advisories
		}
	}
	return pr
}

// dependencyMap renders direct dependencies as name -> selector, skipping
// peer-dependency placeholders.
func dependencyMap(deps []graph.Descriptor) map[string]string {
	out := make(map[string]string, len(deps))
	for _, d := range deps {
		if d.IsVirtual() {
			continue
		}
		name := d.Ident.String()
		if _, ok := out[name]; !ok {
			out[name] = d.Selector()
		}
	}
	return out
}

func validate(g *graph.Graph) error {
	if g == nil {
		return fmt.Errorf("%w: no graph", ErrInvalidGraph)
	}
	for i, p := range g.Packages {
		if p.Ident.Name == "" {
			return fmt.Errorf("%w: package %d has no name", ErrInvalidGraph, i)
		}
	}
	return nil
}
