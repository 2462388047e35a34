// Package store holds the single storage backend of an application, with
// an explicit lifecycle in place of a process-wide global.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/storage"
)

var (
	ErrAlreadyInitialized = errors.New("store already initialized; do not re-init")
	ErrNotInitialized     = errors.New("store not yet initialized; call Init")
)

// Opener opens the Backend a Store holds.
type Opener func(ctx context.Context) (storage.Backend, error)

// OpenerFor returns an Opener of the opfs Backend at |path| within |sm|.
func OpenerFor(sm opfs.StorageManager, path string) Opener {
	return func(ctx context.Context) (storage.Backend, error) {
		var b, err = opfs.Open(ctx, sm, path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Store holds at most one open storage.Backend. The zero value is an
// uninitialized Store, ready for use.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	opening bool
}

// Init opens the Store's Backend. It fails with ErrAlreadyInitialized if
// the Store holds a Backend, or is concurrently being initialized.
func (s *Store) Init(ctx context.Context, open Opener) error {
	s.mu.Lock()
	if s.backend != nil || s.opening {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.opening = true
	s.mu.Unlock()

	// The Opener may wait on the host, so it runs without holding |mu|.
	var backend, err = open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opening = false

	if err != nil {
		return errors.WithMessage(err, "initializing store")
	}
	s.backend = backend

	log.Debug("store: initialized")
	return nil
}

// Backend returns the Store's Backend, or ErrNotInitialized.
func (s *Store) Backend() (storage.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return nil, ErrNotInitialized
	}
	return s.backend, nil
}

// Close closes and releases the Store's Backend, after which the Store may
// be initialized again. It fails with ErrNotInitialized if there is none.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return ErrNotInitialized
	}
	var err = s.backend.Close()
	s.backend = nil

	log.WithField("err", err).Debug("store: closed")
	return err
}
