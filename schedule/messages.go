package schedule

import (
	"fmt"
	"strings"
	"time"

	"terrorzone-notifier/pkg/tz"
)

// stageHeaders are the per-stage alert headlines. The emoji and bold
// text render natively in Discord clients.
var stageHeaders = map[tz.Stage]string{
	tz.StageInitial: "⚔️ **Watched TZ detected!**",
	tz.Stage30Min:   "⏳ **Watched TZ in 30 minutes!**",
	tz.Stage15Min:   "⏳ **Watched TZ in 15 minutes!**",
	tz.Stage5Min:    "🔥 **Watched TZ in 5 minutes, get ready!**",
}

// flavorText carries a per-zone thematic line, keyed by lowercase zone
// name. Zones without an entry simply get no flavor line.
var flavorText = map[string]string{
	"burial grounds":    "Blood Raven stirs among the graves.",
	"crypt":             "The dead do not rest beneath the chapel.",
	"mausoleum":         "Something ancient scratches at the tomb doors.",
	"far oasis":         "The maggots are swarming in the dunes.",
	"chaos sanctuary":   "Diablo awaits at the heart of his domain.",
	"worldstone keep":   "Baal's corruption seeps through the keep.",
	"tal rasha's tombs": "Seven tombs, one true resting place.",
}

// buildAlertMessage renders a countdown alert. zone is the watched zone
// that triggered the alert; nextZones is the full upcoming list as the
// tracker names it.
func buildAlertMessage(zone string, nextZones []string, stage tz.Stage, nextStart time.Time, roleID, trackerURL string) string {
	header, ok := stageHeaders[stage]
	if !ok {
		header = stageHeaders[tz.StageInitial]
	}

	var b strings.Builder
	if roleID != "" {
		fmt.Fprintf(&b, "<@&%s> ", roleID)
	}
	b.WriteString(header)
	b.WriteByte('\n')

	if len(nextZones) > 0 {
		fmt.Fprintf(&b, "**Next Terror Zone:** %s\n", strings.Join(nextZones, ", "))
	}
	fmt.Fprintf(&b, "**Triggers:** **%s**\n", zone)
	if flavor, ok := flavorText[strings.ToLower(strings.TrimSpace(zone))]; ok {
		fmt.Fprintf(&b, "_%s_\n", flavor)
	}
	fmt.Fprintf(&b, "**When:** %s\n", tz.DiscordTime(nextStart))
	b.WriteString(trackerURL)
	return b.String()
}

// buildInfoMessage renders the standing status post. Either zone may be
// unknown; an explicit placeholder keeps the post honest rather than
// hiding the gap.
func buildInfoMessage(snap *tz.Snapshot, trackerURL string) string {
	current := snap.Current
	if current == "" {
		current = "(unknown)"
	}
	next := snap.Next
	if len(snap.NextZones) > 1 {
		next = strings.Join(snap.NextZones, ", ")
	}
	if next == "" {
		next = "(unknown)"
	}

	var b strings.Builder
	b.WriteString("🗺️ **Terror Zone Status**\n")
	fmt.Fprintf(&b, "**Current:** **%s** (ends %s)\n", current, tz.DiscordTime(snap.NextStart))
	fmt.Fprintf(&b, "**Next:** **%s** (starts %s)\n", next, tz.DiscordTime(snap.NextStart))
	b.WriteString(trackerURL)
	return b.String()
}
