// Package store persists full application-state snapshots. A snapshot is
// written once per committed block; Save either records the whole snapshot
// or leaves the previous one intact.
package store

import "onchainuno/internal/state"

type Store interface {
	// Load returns the last saved snapshot, or a fresh state when none
	// exists yet.
	Load() (*state.State, error)
	Save(st *state.State) error
	Close() error
}
