// Package source fetches and parses the terror zone tracker page.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"terrorzone-notifier/pkg/tz"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

// ErrUnavailable indicates the tracker page could not be retrieved or
// parsed this run. The run ends early; the next periodic invocation
// retries naturally.
var ErrUnavailable = errors.New("zone source unavailable")

// Scraper fetches and parses the tracker page.
type Scraper struct {
	client *http.Client
	logger *slog.Logger
	url    string
}

// New creates a new scraper for the given tracker URL.
func New(client *http.Client, url string, logger *slog.Logger) *Scraper {
	return &Scraper{
		client: client,
		url:    url,
		logger: logger,
	}
}

// Fetch retrieves the tracker page and extracts the current snapshot.
func (s *Scraper) Fetch(ctx context.Context) (*tz.Snapshot, error) {
	var snap *tz.Snapshot

	err := retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", s.url,
				"purpose", "fetch_tracker_page")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			// Set essential Chrome-like headers to avoid getting blocked
			req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
			req.Header.Set("Cache-Control", "no-cache")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", s.url,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", s.url,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode != http.StatusOK {
				s.logger.Warn("HTTP request returned non-OK status, will retry", "status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			snap, err = parseSnapshot(resp.Body, time.Now().UTC())
			if err != nil {
				s.logger.Error("Failed to parse tracker HTML", "error", err)
				return retry.Unrecoverable(err)
			}

			s.logger.Info("Tracker page parsed",
				"url", s.url,
				"current_zone", snap.Current,
				"next_zone", snap.Next,
				"next_start", snap.NextStart.Format(time.RFC3339))

			return nil
		},
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "error", err)
		}),
	)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return snap, nil
}

// parseSnapshot extracts zone names and the rotation epoch from a
// tracker page. The markup carries no stable schema; the extraction
// keys off block text rather than classes so class churn on the site
// does not break it.
func parseSnapshot(body io.Reader, now time.Time) (*tz.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	snap := &tz.Snapshot{
		NextStart: nextHour(now),
	}

	// Rotation epoch lives in the value attribute of #next-time.
	if val, ok := doc.Find("#next-time").First().Attr("value"); ok {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil && epoch > 0 {
			snap.NextStart = time.Unix(epoch, 0).UTC()
		}
	}

	snap.NextZones = zonesFromBlock(doc, "next terror zone")
	if len(snap.NextZones) > 0 {
		snap.Next = snap.NextZones[0]
	}
	if current := zonesFromBlock(doc, "current terror zone"); len(current) > 0 {
		snap.Current = current[0]
	}

	if snap.Next == "" && snap.Current == "" {
		return nil, errors.New("no terror zone block found")
	}

	return snap, nil
}

// zonesFromBlock finds the innermost div whose text contains the marker
// and that carries a ul>li>a zone list, and returns the link texts.
func zonesFromBlock(doc *goquery.Document, marker string) []string {
	var zones []string
	doc.Find("div").Each(func(_ int, sel *goquery.Selection) {
		if !strings.Contains(strings.ToLower(sel.Text()), marker) {
			return
		}
		links := sel.Find("ul li a")
		if links.Length() == 0 {
			return
		}
		var found []string
		links.Each(func(_ int, a *goquery.Selection) {
			if name := strings.TrimSpace(a.Text()); name != "" {
				found = append(found, name)
			}
		})
		if len(found) > 0 {
			// Inner divs match after outer ones; keep the last match.
			zones = found
		}
	})
	return zones
}

// nextHour returns the top of the next UTC hour, the rotation cadence
// assumed when the page exposes no explicit epoch.
func nextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}
