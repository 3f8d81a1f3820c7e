package storage

import (
	"time"

	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Token is a tracked token and its aggregate counters
type Token struct {
	Address        string
	Name           string
	Symbol         string
	LogoURI        string
	CurrentMcap    float64
	ScanCount      int64
	GroupCount     int
	Views          int64
	PostCount      int64
	PostViews      int64
	LatestPostID   string
	AttentionScore int
	Zones          map[zone.Zone]ZoneEntry
	CreatedAt      time.Time
}

// ActiveZones returns the zones the token currently occupies. The set is
// derived from Zones so both always agree.
func (t *Token) ActiveZones() zone.Set {
	var s zone.Set
	for z := range t.Zones {
		s = s.Add(z)
	}
	return s
}

// ZoneEntry is the state of a token inside one zone while it is active
type ZoneEntry struct {
	EntryMcap float64
	AthMcap   float64
	EnteredAt time.Time
}

// ScanEvent is one observed mention of a token in a group
type ScanEvent struct {
	ID           int64
	TokenAddress string
	Source       string // "telegram" or "discord"
	GroupID      string
	GroupName    string
	CreatedAt    time.Time
}

// Subscription holds the per-zone alert opt-ins of a chat
type Subscription struct {
	ChatID    int64
	Username  string
	Zones     zone.Set
	CreatedAt time.Time
}

// Receipt records one successfully delivered zone-entry alert
type Receipt struct {
	ID           int64
	ChatID       int64
	TokenAddress string
	Zone         zone.Zone
	EnteredAt    time.Time // entry timestamp of the zone-entry event
	MessageID    int
	EntryMcap    float64
	Checkpoints  []float64 // multiples already notified
	CreatedAt    time.Time
}

// HasCheckpoint reports whether multiple was already notified.
func (r *Receipt) HasCheckpoint(multiple float64) bool {
	for _, m := range r.Checkpoints {
		if m == multiple {
			return true
		}
	}
	return false
}

// Transition is a set of zone mutations applied to one token atomically
type Transition struct {
	Address string
	Enter   map[zone.Zone]ZoneEntry
	Exit    zone.Set
	Mcap    *float64 // refreshed market cap, stored when set
}

// Applied reports which zones a transition actually changed
type Applied struct {
	Entered zone.Set
	Exited  zone.Set
}

// Empty reports whether nothing changed.
func (a Applied) Empty() bool {
	return a.Entered.Empty() && a.Exited.Empty()
}

// EngagementUpdate carries fresh external engagement numbers for a token
type EngagementUpdate struct {
	Views        *int64 // replaces the stored value when set
	NewPosts     int64
	NewPostViews int64
	LatestPostID string
}
