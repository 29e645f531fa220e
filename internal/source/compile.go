package source

import (
	"context"
	"errors"
	"fmt"

	"recurset/internal/config"
	"recurset/internal/ics"
	appLog "recurset/internal/log"
)

// Compiled is a loaded source parsed into an interval set.
type Compiled struct {
	Source    Source
	Set       *ics.RecurringIntervalSet
	FromCache bool
}

// Compile loads every source and parses it with opts. Sources that fail to
// load or parse are skipped and reported in the error slice. A download
// that does not parse never replaces a cached body.
func (l *Loader) Compile(ctx context.Context, sources []Source, opts ics.ParseOptions) ([]Compiled, []error) {
	results, errs := l.WithCheck(func(body []byte) error {
		_, err := ics.Parse(string(body), opts)
		return err
	}).LoadAll(ctx, sources)

	out := make([]Compiled, 0, len(results))
	for _, res := range results {
		set, err := ics.Parse(string(res.Body), opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			appLog.Error("rule parse failed", err, "id", res.Source.ID)
			continue
		}
		appLog.Info("rule set compiled", "id", res.Source.ID, "entries", len(set.Intervals()),
			"unbounded", set.Unbounded(), "from_cache", res.FromCache)
		out = append(out, Compiled{Source: res.Source, Set: set, FromCache: res.FromCache})
	}
	return out, errs
}

// FromConfig converts configured rule entries into sources, skipping
// entries with neither a path nor a URL.
func FromConfig(rules []config.RuleConfig) []Source {
	out := make([]Source, 0, len(rules))
	for _, r := range rules {
		if r.Path == "" && r.URL == "" {
			appLog.Error("rule source skipped", errors.New("neither path nor url set"), "id", r.ID)
			continue
		}
		out = append(out, Source{ID: r.ID, Name: r.Name, Path: r.Path, URL: r.URL})
	}
	return out
}
