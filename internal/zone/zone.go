// Package zone defines the attention zones a token can occupy and the pure
// classification of windowed scan statistics against zone criteria.
package zone

import (
	"fmt"
	"strings"
)

// Zone identifies an attention tier.
type Zone string

const (
	DegenOrbit    Zone = "DEGEN_ORBIT"
	Mainframe     Zone = "MAINFRAME"
	SentimentCore Zone = "SENTIMENT_CORE"
)

// All lists every zone in evaluation order. Iterations over "all zones"
// must range over this slice.
var All = []Zone{DegenOrbit, Mainframe, SentimentCore}

// Parse resolves a zone by its name, case-insensitively.
func Parse(s string) (Zone, error) {
	name := Zone(strings.ToUpper(strings.TrimSpace(s)))
	for _, z := range All {
		if z == name {
			return z, nil
		}
	}
	return "", fmt.Errorf("unknown zone %q", s)
}

// Valid reports whether z is one of the known zones.
func (z Zone) Valid() bool {
	return z.index() >= 0
}

// Title returns the human readable zone name used in alerts.
func (z Zone) Title() string {
	switch z {
	case DegenOrbit:
		return "🧪 Degen Orbit"
	case Mainframe:
		return "📡 Mainframe Zone"
	case SentimentCore:
		return "🧠 Sentiment Core"
	default:
		return string(z)
	}
}

func (z Zone) index() int {
	for i, known := range All {
		if known == z {
			return i
		}
	}
	return -1
}

// Set is a set of zones stored as a bitmask over All.
type Set uint8

// NewSet builds a set from the given zones. Unknown zones are ignored.
func NewSet(zones ...Zone) Set {
	var s Set
	for _, z := range zones {
		s = s.Add(z)
	}
	return s
}

func (s Set) Has(z Zone) bool {
	i := z.index()
	return i >= 0 && s&(1<<i) != 0
}

func (s Set) Add(z Zone) Set {
	if i := z.index(); i >= 0 {
		return s | 1<<i
	}
	return s
}

func (s Set) Remove(z Zone) Set {
	if i := z.index(); i >= 0 {
		return s &^ (1 << i)
	}
	return s
}

// Minus returns the zones in s that are not in other.
func (s Set) Minus(other Set) Set { return s &^ other }

func (s Set) Union(other Set) Set { return s | other }

func (s Set) Empty() bool { return s == 0 }

func (s Set) Len() int {
	n := 0
	for _, z := range All {
		if s.Has(z) {
			n++
		}
	}
	return n
}

// Zones returns the members of s in All order.
func (s Set) Zones() []Zone {
	var out []Zone
	for _, z := range All {
		if s.Has(z) {
			out = append(out, z)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, len(All))
	for _, z := range s.Zones() {
		names = append(names, string(z))
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Diff compares the previously active zones with a fresh classification.
func Diff(active, classified Set) (entered, exited Set) {
	return classified.Minus(active), active.Minus(classified)
}
