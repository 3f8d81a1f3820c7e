package zone

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Criteria are the thresholds a token must meet inside a trailing window.
type Criteria struct {
	Window    time.Duration
	MinScans  int
	MinGroups int
}

// Relaxed lowers every threshold by one, never below zero.
func (c Criteria) Relaxed() Criteria {
	return Criteria{
		Window:    c.Window,
		MinScans:  max(c.MinScans-1, 0),
		MinGroups: max(c.MinGroups-1, 0),
	}
}

// Satisfied reports whether stats meet the criteria. A window without any
// scan never qualifies, even for zero thresholds.
func (c Criteria) Satisfied(s WindowStats) bool {
	if s.Scans == 0 {
		return false
	}
	return s.Scans >= c.MinScans && s.Groups >= c.MinGroups
}

// Registry holds the criteria of every zone. It is built once at startup
// and read-only afterwards.
type Registry struct {
	criteria [3]Criteria
}

// DefaultRegistry returns the production zone thresholds.
func DefaultRegistry() *Registry {
	r := &Registry{}
	r.set(DegenOrbit, Criteria{Window: 2 * time.Hour, MinScans: 4, MinGroups: 3})
	r.set(Mainframe, Criteria{Window: 8 * time.Hour, MinScans: 12, MinGroups: 6})
	r.set(SentimentCore, Criteria{Window: 24 * time.Hour, MinScans: 20, MinGroups: 8})
	return r
}

func (r *Registry) set(z Zone, c Criteria) {
	r.criteria[z.index()] = c
}

// Criteria returns the thresholds of z.
func (r *Registry) Criteria(z Zone) Criteria {
	i := z.index()
	if i < 0 {
		return Criteria{}
	}
	return r.criteria[i]
}

// Relaxed returns the pre-entry variant of the registry.
func (r *Registry) Relaxed() *Registry {
	out := &Registry{}
	for _, z := range All {
		out.set(z, r.Criteria(z).Relaxed())
	}
	return out
}

// Shortest returns the zone with the smallest window.
func (r *Registry) Shortest() Zone {
	best := All[0]
	for _, z := range All[1:] {
		if r.Criteria(z).Window < r.Criteria(best).Window {
			best = z
		}
	}
	return best
}

// Longest returns the largest window over all zones.
func (r *Registry) Longest() time.Duration {
	var longest time.Duration
	for _, z := range All {
		if w := r.Criteria(z).Window; w > longest {
			longest = w
		}
	}
	return longest
}

type fileCriteria struct {
	Window    string `yaml:"window"`
	MinScans  *int   `yaml:"min_scans"`
	MinGroups *int   `yaml:"min_groups"`
}

type fileRegistry struct {
	Zones map[string]fileCriteria `yaml:"zones"`
}

// LoadRegistry starts from the defaults and applies the overrides found in
// a YAML file:
//
//	zones:
//	  DEGEN_ORBIT: {window: 2h, min_scans: 4, min_groups: 3}
func LoadRegistry(path string) (*Registry, error) {
	r := DefaultRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file %s: %w", path, err)
	}

	var f fileRegistry
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse zones file: %w", err)
	}

	for name, fc := range f.Zones {
		z, err := Parse(name)
		if err != nil {
			return nil, err
		}
		c := r.Criteria(z)
		if fc.Window != "" {
			w, err := time.ParseDuration(fc.Window)
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("zone %s: invalid window %q", z, fc.Window)
			}
			c.Window = w
		}
		if fc.MinScans != nil {
			if *fc.MinScans < 0 {
				return nil, fmt.Errorf("zone %s: min_scans must not be negative", z)
			}
			c.MinScans = *fc.MinScans
		}
		if fc.MinGroups != nil {
			if *fc.MinGroups < 0 {
				return nil, fmt.Errorf("zone %s: min_groups must not be negative", z)
			}
			c.MinGroups = *fc.MinGroups
		}
		r.set(z, c)
	}

	return r, nil
}
