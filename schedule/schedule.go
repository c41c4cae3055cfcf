// Package schedule decides, once per invocation, whether the standing
// informational post needs a refresh and whether a countdown alert is
// due, and drives the notifier accordingly.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"terrorzone-notifier/pkg/tz"
)

// Source provides the current zone snapshot.
type Source interface {
	Fetch(ctx context.Context) (*tz.Snapshot, error)
}

// Messenger is the outbound notification channel. Delete is idempotent:
// a message that is already gone counts as deleted.
type Messenger interface {
	Send(ctx context.Context, content string) (string, error)
	Edit(ctx context.Context, messageID, content string) error
	Delete(ctx context.Context, messageID string) error
}

// Store persists alert state between runs.
type Store interface {
	Load(ctx context.Context) (*tz.State, error)
	Save(ctx context.Context, st *tz.State) error
}

// Scheduler runs one decision cycle per invocation.
type Scheduler struct {
	source     Source
	messenger  Messenger
	store      Store
	logger     *slog.Logger
	clock      func() time.Time
	watchlist  tz.Watchlist
	mode       tz.RunMode
	roleID     string
	trackerURL string
}

// Config holds scheduler construction parameters.
type Config struct {
	Source     Source
	Messenger  Messenger
	Store      Store
	Logger     *slog.Logger
	Watchlist  tz.Watchlist
	Mode       tz.RunMode
	RoleID     string
	TrackerURL string
	Clock      func() time.Time // defaults to time.Now
}

// New creates a scheduler.
func New(cfg *Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		source:     cfg.Source,
		messenger:  cfg.Messenger,
		store:      cfg.Store,
		logger:     cfg.Logger,
		clock:      clock,
		watchlist:  cfg.Watchlist,
		mode:       cfg.Mode,
		roleID:     cfg.RoleID,
		trackerURL: cfg.TrackerURL,
	}
}

// Run executes one cycle: load state, fetch the snapshot, refresh the
// informational post, then evaluate the countdown alert. State is saved
// after each successful branch, never mid-branch, so a crash loses at
// most the branch that had not run yet.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.mode == tz.ModeDemo {
		return s.RunDemo(ctx)
	}

	st, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	snap, err := s.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch zones: %w", err)
	}

	now := s.clock().UTC()
	minutes := tz.MinutesUntil(now, snap.NextStart)
	stage := tz.StageFor(minutes)

	s.logger.Info("Run evaluation",
		"mode", s.mode.String(),
		"current_zone", snap.Current,
		"next_zone", snap.Next,
		"minutes_to_next", minutes,
		"stage", string(stage))

	// Informational branch is best effort and must never block alerts.
	s.refreshInfo(ctx, st, snap)

	return s.runAlert(ctx, st, snap, stage, now)
}

// refreshInfo keeps the standing status post in sync with the snapshot.
// It touches the notifier only when the (current, next) pair changed or
// no post is on record.
func (s *Scheduler) refreshInfo(ctx context.Context, st *tz.State, snap *tz.Snapshot) {
	if st.LastInfoMessageID != "" &&
		st.LastInfoCurrentZone == snap.Current &&
		st.LastInfoNextZone == snap.Next {
		s.logger.Info("Info post already current", "current_zone", snap.Current, "next_zone", snap.Next)
		return
	}

	content := buildInfoMessage(snap, s.trackerURL)

	if st.LastInfoMessageID != "" {
		err := s.messenger.Edit(ctx, st.LastInfoMessageID, content)
		if err == nil {
			st.LastInfoCurrentZone = snap.Current
			st.LastInfoNextZone = snap.Next
			s.saveBestEffort(ctx, st, "info edit")
			s.logger.Info("Info post edited", "message_id", st.LastInfoMessageID)
			return
		}
		s.logger.Warn("Info edit failed, replacing post", "message_id", st.LastInfoMessageID, "error", err)
		if delErr := s.messenger.Delete(ctx, st.LastInfoMessageID); delErr != nil {
			s.logger.Warn("Info post replacement aborted", "error", delErr)
			return
		}
		st.LastInfoMessageID = ""
	}

	id, err := s.messenger.Send(ctx, content)
	if err != nil {
		// Abort without mutating state so the next run retries.
		s.logger.Warn("Info post creation failed", "error", err)
		return
	}
	st.LastInfoMessageID = id
	st.LastInfoCurrentZone = snap.Current
	st.LastInfoNextZone = snap.Next
	s.saveBestEffort(ctx, st, "info create")
	s.logger.Info("Info post created", "message_id", id)
}

// runAlert evaluates the countdown branch.
func (s *Scheduler) runAlert(ctx context.Context, st *tz.State, snap *tz.Snapshot, stage tz.Stage, now time.Time) error {
	forced := s.mode == tz.ModeForced

	if snap.Next == "" {
		// Nothing to announce; clean up a stale alert for a zone that
		// is no longer relevant once a fresh rotation window opens.
		if stage == tz.StageInitial && st.LastAlertMessageID != "" {
			if err := s.messenger.Delete(ctx, st.LastAlertMessageID); err != nil {
				s.logger.Warn("Stale alert cleanup failed", "message_id", st.LastAlertMessageID, "error", err)
				return nil
			}
			s.logger.Info("Stale alert deleted", "message_id", st.LastAlertMessageID)
			st.LastAlertMessageID = ""
			s.saveBestEffort(ctx, st, "alert cleanup")
		}
		s.logger.Info("No next zone known; no alert")
		return nil
	}

	if stage == tz.StageNone && !forced {
		s.logger.Info("Outside alert window; no alert")
		return nil
	}

	zone, watched := s.firstWatched(snap)
	if !watched {
		if !forced {
			s.logger.Info("Next zone not on watchlist; no alert", "next_zone", snap.Next)
			return nil
		}
		zone = snap.Next
	}

	alertStage := stage
	if alertStage == tz.StageNone {
		// Forced sends outside any window use the initial template.
		alertStage = tz.StageInitial
	}

	epoch := snap.NextStart.Unix()
	if !forced && st.Fired(zone, alertStage, epoch) {
		s.logger.Info("Alert already fired for this window", "zone", zone, "stage", string(alertStage))
		return nil
	}

	// Replace, don't accumulate: at most one live alert message.
	if st.LastAlertMessageID != "" {
		if err := s.messenger.Delete(ctx, st.LastAlertMessageID); err != nil {
			s.logger.Warn("Previous alert delete failed, sending anyway", "message_id", st.LastAlertMessageID, "error", err)
		}
	}

	content := buildAlertMessage(zone, snap.NextZones, alertStage, snap.NextStart, s.roleID, s.trackerURL)
	id, err := s.messenger.Send(ctx, content)
	if err != nil {
		// No state mutation: the next run inside the window retries.
		return fmt.Errorf("send alert: %w", err)
	}

	st.LastAlertMessageID = id
	st.MarkFired(zone, alertStage, epoch)
	st.Prune(now)
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	s.logger.Info("Alert sent",
		"zone", zone,
		"stage", string(alertStage),
		"message_id", id,
		"forced", forced)
	return nil
}

// RunDemo sends one initial-stage preview per watchlist entry. It reads
// nothing from the source and neither reads nor writes state; it exists
// purely to preview message formatting.
func (s *Scheduler) RunDemo(ctx context.Context) error {
	names := s.watchlist.Names()
	sort.Strings(names)
	if len(names) == 0 {
		return errors.New("demo mode requires a non-empty watchlist")
	}

	nextStart := s.clock().UTC().Truncate(time.Hour).Add(time.Hour)
	for _, zone := range names {
		content := buildAlertMessage(zone, []string{zone}, tz.StageInitial, nextStart, s.roleID, s.trackerURL)
		id, err := s.messenger.Send(ctx, content)
		if err != nil {
			return fmt.Errorf("send demo alert for %q: %w", zone, err)
		}
		s.logger.Info("Demo alert sent", "zone", zone, "message_id", id)
	}
	return nil
}

// firstWatched returns the first upcoming zone that is on the
// watchlist, preferring the full list when the tracker names several
// areas for one rotation.
func (s *Scheduler) firstWatched(snap *tz.Snapshot) (string, bool) {
	zones := snap.NextZones
	if len(zones) == 0 {
		zones = []string{snap.Next}
	}
	for _, z := range zones {
		if s.watchlist.Contains(z) {
			return z, true
		}
	}
	return "", false
}

func (s *Scheduler) saveBestEffort(ctx context.Context, st *tz.State, branch string) {
	if err := s.store.Save(ctx, st); err != nil {
		s.logger.Warn("State save failed", "branch", branch, "error", err)
	}
}
