// Package probe decides whether a declared dependency has a safe in-range
// update, only a breaking one, or none at all.
package probe

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sambabib/dependency-inspector/pkg/graph"
	"github.com/sambabib/dependency-inspector/pkg/logger"
	"github.com/sambabib/dependency-inspector/pkg/registry"
	"github.com/sambabib/dependency-inspector/pkg/version"
)

// Result is the outcome of probing one package. Empty fields mean "not known"
// and are rendered as null.
type Result struct {
	LatestVersion string
	Status        version.UpdateStatus
}

// Probe asks a resolver for the best in-range and the absolute latest version
// of a dependency and classifies the pair.
type Probe struct {
	resolver      registry.Resolver
	defaultPrefix string
}

// New creates a Probe. defaultPrefix is the modifier used for ranges that are
// not simple semver (yarn's defaultSemverRangePrefix); "" keeps them exact.
func New(resolver registry.Resolver, defaultPrefix string) *Probe {
	return &Probe{resolver: resolver, defaultPrefix: defaultPrefix}
}

// Run probes the descriptor a package was declared with. current is the
// installed version.
func (p *Probe) Run(ctx context.Context, d graph.Descriptor, current string) Result {
	if !d.IsRegistry() {
		return Result{Status: version.StatusUnknown}
	}

	name := d.Ident.String()
	declared := d.Selector()
	referenceRange := version.ReferenceRange(declared)

	var inRange, latest string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inRange = p.suggest(gctx, name, referenceRange, declared)
		return nil
	})
	g.Go(func() error {
		latest = p.suggest(gctx, name, version.LatestTag, declared)
		return nil
	})
	_ = g.Wait() // suggest never fails; errors degrade to "no candidate"

	return classify(declared, current, inRange, latest)
}

// classify applies the tie-break policy to the three selectors. An empty
// selector means the probe found no candidate.
func classify(declared, current, inRange, latest string) Result {
	var res Result
	if inRange != "" {
		if !version.SameSelector(inRange, declared) {
			res = Result{LatestVersion: version.StripSpecifier(inRange), Status: version.StatusSemverSafeUpdate}
		} else {
			res = Result{LatestVersion: current, Status: version.StatusUpToDate}
		}
	}

	// a release outside the safe range outranks a same-range update
	if latest != "" && !version.SameSelector(latest, inRange) && !version.SameSelector(latest, declared) {
		res = Result{LatestVersion: version.StripSpecifier(latest), Status: version.StatusUpdatePossible}
	}

	if res.Status != "" && sameVersion(res.LatestVersion, current) {
		res.Status = version.StatusUpToDate
	}
	return res
}

// suggest returns the selector a user would write to pin the best candidate
// for rng, keeping the modifier style of preserve. It returns "" when the
// resolver has nothing or fails.
func (p *Probe) suggest(ctx context.Context, name, rng, preserve string) string {
	c, err := p.resolver.BestCandidate(ctx, name, rng)
	if err != nil {
		logger.Warnf("Could not resolve %s@%s: %v", name, rng, err)
		return ""
	}
	if c == nil {
		logger.Debugf("No candidate for %s@%s", name, rng)
		return ""
	}
	if !version.Valid(c.Version) {
		return c.Version
	}

	raw := c.Version
	modifier := version.ExtractModifier(preserve, p.defaultPrefix)
	if modifier == version.ModifierExact {
		return raw
	}

	// Turning 1.0.0 into ^1.0.0 must not make it resolve to something else,
	// which happens with releases published out of order.
	selector := modifier + raw
	screen, err := p.resolver.BestCandidate(ctx, name, selector)
	if err != nil || screen == nil || screen.Version != raw {
		return raw
	}
	return selector
}

func sameVersion(a, b string) bool {
	if a == b {
		return true
	}
	return version.Valid(a) && version.Valid(b) && version.Compare(a, b) == 0
}
