// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package watchlist persists operator-maintained device profiles: labels,
// groupings, notes, and the watchlist flag. Profiles live in BadgerDB rather
// than the analytical store because they are point lookups on the hot ingest
// path, not scan targets.
package watchlist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// ErrProfileNotFound indicates no profile exists for the device.
var ErrProfileNotFound = errors.New("device profile not found")

const profileKeyPrefix = "profile:"

// Store is the badger-backed device profile store.
type Store struct {
	db    *badger.DB
	clock func() time.Time
}

// Open opens (or creates) the profile store at path. An empty path opens an
// in-memory store for tests.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}

	logging.Info().Str("path", path).Msg("profile store opened")
	return &Store{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func profileKey(deviceID string) []byte {
	return []byte(profileKeyPrefix + strings.ToUpper(deviceID))
}

// Upsert writes a profile. CreatedAt is preserved on update.
func (s *Store) Upsert(p *models.DeviceProfile) error {
	now := s.clock()
	existing, err := s.Get(p.DeviceID)
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrProfileNotFound):
		p.CreatedAt = now
	default:
		return err
	}
	p.UpdatedAt = now

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.DeviceID), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// Get returns one profile by device ID.
func (s *Store) Get(deviceID string) (*models.DeviceProfile, error) {
	var p models.DeviceProfile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(deviceID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, deviceID)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

// Delete removes a profile. Deleting a missing profile is not an error.
func (s *Store) Delete(deviceID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(profileKey(deviceID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// List returns all profiles. watchlistedOnly restricts to flagged devices.
func (s *Store) List(watchlistedOnly bool) ([]models.DeviceProfile, error) {
	var out []models.DeviceProfile
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(profileKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p models.DeviceProfile
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				return err
			}
			if watchlistedOnly && !p.Watchlisted {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return out, nil
}

// SetWatchlisted flags or unflags a device, creating a bare profile if none
// exists.
func (s *Store) SetWatchlisted(deviceID string, watchlisted bool) (*models.DeviceProfile, error) {
	p, err := s.Get(deviceID)
	if errors.Is(err, ErrProfileNotFound) {
		p = &models.DeviceProfile{
			DeviceID:     strings.ToUpper(deviceID),
			Manufacturer: ManufacturerFor(deviceID),
		}
	} else if err != nil {
		return nil, err
	}

	p.Watchlisted = watchlisted
	if err := s.Upsert(p); err != nil {
		return nil, err
	}
	return p, nil
}

// IsWatchlisted reports whether a device is flagged. Missing profiles are
// simply not watchlisted.
func (s *Store) IsWatchlisted(deviceID string) bool {
	p, err := s.Get(deviceID)
	if err != nil {
		return false
	}
	return p.Watchlisted
}
