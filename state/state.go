// Package state handles persistence of the alert bookkeeping record.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"terrorzone-notifier/pkg/tz"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

const objectKey = "tz-alert-state.json"

// Store persists the single AlertState record, either as a local JSON
// file (development, cron runners) or as a Cloud Storage object
// (Cloud Run deployments).
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a state store. When localPath is non-empty the store
// works against the local filesystem and client may be nil.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Load reads the persisted state. A missing record is a first run and
// yields an empty default state, not an error.
func (s *Store) Load(ctx context.Context) (*tz.State, error) {
	var data []byte

	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Info("No prior state, starting fresh", "path", s.localPath)
				return tz.NewState(), nil
			}
			return nil, fmt.Errorf("read state file: %w", err)
		}
	} else {
		var readData []byte
		var notFound bool
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(objectKey).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						notFound = true
						return retry.Unrecoverable(openErr)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(30*time.Second),
			retry.MaxJitter(5*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying state load after error", "attempt", n, "error", retryErr)
			}),
		)
		if notFound {
			s.logger.Info("No prior state object, starting fresh", "bucket", s.bucket, "key", objectKey)
			return tz.NewState(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
		data = readData
	}

	var st tz.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.FiredStages == nil {
		st.FiredStages = make(map[string]int64)
	}
	return &st, nil
}

// Save persists the full state. The local path uses write-new-then-
// replace so a kill mid-save never leaves a half-written file behind.
func (s *Store) Save(ctx context.Context, st *tz.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if s.localPath != "" {
		if err := writeAtomic(s.localPath, data); err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
		s.logger.Info("State saved", "path", s.localPath, "fired_stages", len(st.FiredStages))
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(objectKey).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying state save after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("State saved", "bucket", s.bucket, "key", objectKey, "fired_stages", len(st.FiredStages))
	return nil
}

// writeAtomic writes to a temp file in the target directory and renames
// it into place. Rename within one filesystem is atomic, so readers see
// either the old state or the new one, never a torn write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
