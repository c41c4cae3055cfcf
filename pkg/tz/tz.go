// Package tz contains the core domain types for the terror zone notifier.
package tz

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is one observation of the tracker: the zone that is active
// right now, the zone(s) coming up, and when the rotation happens.
// Either zone may be empty if only one side could be recovered.
type Snapshot struct {
	Current   string    // active zone, empty if unknown
	Next      string    // headline upcoming zone, empty if unknown
	NextZones []string  // full upcoming list; the tracker sometimes names several areas
	NextStart time.Time // when the upcoming zone activates (top of the next hour, UTC)
}

// Stage is a named checkpoint in the countdown to the next rotation.
type Stage string

const (
	StageInitial Stage = "initial"
	Stage30Min   Stage = "thirty_min"
	Stage15Min   Stage = "fifteen_min"
	Stage5Min    Stage = "five_min"
	StageNone    Stage = "outside_window"
)

// StageFor classifies minutes-until-rotation into a countdown stage.
// The bands are deliberately wide: the external trigger fires every few
// minutes, not exactly on the checkpoint minute, and must still land
// inside a window.
func StageFor(minutesToNext int) Stage {
	switch {
	case minutesToNext >= 50:
		return StageInitial
	case minutesToNext >= 26 && minutesToNext <= 35:
		return Stage30Min
	case minutesToNext >= 12 && minutesToNext <= 18:
		return Stage15Min
	case minutesToNext >= 3 && minutesToNext <= 7:
		return Stage5Min
	default:
		return StageNone
	}
}

// MinutesUntil rounds the remaining duration to whole minutes so a
// trigger firing at 29m30s still lands in the 30-minute band.
func MinutesUntil(now, next time.Time) int {
	return int(next.Sub(now).Round(time.Minute) / time.Minute)
}

// State is the persisted alert bookkeeping, loaded at the start of a
// run and saved after each successful branch. Fields are additive only;
// there is no schema version.
type State struct {
	// FiredStages maps "zone|stage" to the rotation epoch (unix
	// seconds of the NextStart it fired for). An entry only counts
	// as fired within its own rotation.
	FiredStages map[string]int64 `json:"fired_stages,omitempty"`

	LastAlertMessageID string `json:"last_alert_message_id,omitempty"`

	LastInfoMessageID   string `json:"last_info_message_id,omitempty"`
	LastInfoCurrentZone string `json:"last_info_current_zone,omitempty"`
	LastInfoNextZone    string `json:"last_info_next_zone,omitempty"`
}

// NewState returns an empty state for a first run.
func NewState() *State {
	return &State{FiredStages: make(map[string]int64)}
}

func firedKey(zone string, stage Stage) string {
	return strings.ToLower(strings.TrimSpace(zone)) + "|" + string(stage)
}

// Fired reports whether an alert for this zone and stage already went
// out for the rotation identified by epoch.
func (s *State) Fired(zone string, stage Stage, epoch int64) bool {
	if s.FiredStages == nil {
		return false
	}
	return s.FiredStages[firedKey(zone, stage)] == epoch
}

// MarkFired latches the zone+stage pair for the given rotation.
func (s *State) MarkFired(zone string, stage Stage, epoch int64) {
	if s.FiredStages == nil {
		s.FiredStages = make(map[string]int64)
	}
	s.FiredStages[firedKey(zone, stage)] = epoch
}

// Prune drops fired-stage entries from rotations that already ended.
// Without this the set would grow without bound across rotations.
func (s *State) Prune(now time.Time) {
	cutoff := now.Truncate(time.Hour).Unix()
	for k, epoch := range s.FiredStages {
		if epoch < cutoff {
			delete(s.FiredStages, k)
		}
	}
}

// Watchlist is the operator-configured set of zones that should trigger
// countdown alerts. Matching is case-insensitive and whitespace
// tolerant.
type Watchlist map[string]string // lowercase name -> display name

// ParseWatchlist builds a watchlist from a comma-separated string.
func ParseWatchlist(terms string) Watchlist {
	w := make(Watchlist)
	for _, t := range strings.Split(terms, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		w[strings.ToLower(t)] = t
	}
	return w
}

// Contains reports whether the zone is on the watchlist.
func (w Watchlist) Contains(zone string) bool {
	_, ok := w[strings.ToLower(strings.TrimSpace(zone))]
	return ok
}

// Names returns the configured display names. Order is unspecified;
// callers that need a stable order should sort.
func (w Watchlist) Names() []string {
	names := make([]string, 0, len(w))
	for _, n := range w {
		names = append(names, n)
	}
	return names
}

// RunMode selects the scheduler code path once at startup instead of
// threading force/demo booleans through every function.
type RunMode int

const (
	ModeNormal RunMode = iota
	ModeForced // bypass window, watchlist and dedup checks
	ModeDemo   // one preview message per watchlist entry, no state
)

func (m RunMode) String() string {
	switch m {
	case ModeForced:
		return "forced"
	case ModeDemo:
		return "demo"
	default:
		return "normal"
	}
}

// DiscordTime renders the absolute + relative timestamp tokens that
// Discord clients localize for the viewer, e.g. "<t:123:t> (<t:123:R>)".
func DiscordTime(t time.Time) string {
	if t.IsZero() {
		return "(time unknown)"
	}
	epoch := t.Unix()
	return fmt.Sprintf("<t:%d:t> (<t:%d:R>)", epoch, epoch)
}
