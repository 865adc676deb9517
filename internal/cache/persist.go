package cache

import (
	"context"
	"errors"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// saveTimeout bounds a single background save.
const saveTimeout = 10 * time.Second

var errClosed = errors.New("store closed")

func (s *Store) markDirty() {
	s.saveMu.Lock()
	s.version++
	s.saveMu.Unlock()

	if s.persist == nil {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// saver writes the latest collection whenever the store is marked dirty.
// Bursts of mutations coalesce into one save.
func (s *Store) saver() {
	defer close(s.done)
	for {
		select {
		case <-s.dirty:
			s.saveOnce()
		case <-s.stop:
			s.saveOnce()
			return
		}
	}
}

func (s *Store) saveOnce() {
	s.saveMu.Lock()
	target := s.version
	already := s.saved >= target
	s.saveMu.Unlock()
	if already {
		return
	}

	s.mu.RLock()
	tasks := backend.Clone(s.tasks)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	err := s.persist.Save(ctx, tasks)
	cancel()
	if err != nil {
		err = utils.ErrPersistenceFailed("save", err)
		utils.Warnf("%v", errors.Unwrap(err))
	}

	s.saveMu.Lock()
	if target > s.saved {
		s.saved = target
	}
	s.saveErr = err
	close(s.notify)
	s.notify = make(chan struct{})
	s.saveMu.Unlock()
}

// Flush waits until every mutation made before the call has been handed
// to persistence, and returns the outcome of the last save.
func (s *Store) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	s.saveMu.Lock()
	target := s.version
	s.saveMu.Unlock()

	for {
		s.saveMu.Lock()
		if s.saved >= target {
			err := s.saveErr
			s.saveMu.Unlock()
			return err
		}
		if s.closed {
			s.saveMu.Unlock()
			return errClosed
		}
		ch := s.notify
		s.saveMu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes any pending changes, stops the background saver and
// closes the persistence.
func (s *Store) Close(ctx context.Context) error {
	s.saveMu.Lock()
	if s.closed {
		s.saveMu.Unlock()
		return nil
	}
	s.saveMu.Unlock()

	if s.persist == nil {
		s.saveMu.Lock()
		s.closed = true
		s.saveMu.Unlock()
		return nil
	}

	s.stopped.Do(func() { close(s.stop) })
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.saveMu.Lock()
	s.closed = true
	saveErr := s.saveErr
	s.saveMu.Unlock()

	if err := s.persist.Close(); err != nil {
		return utils.ErrPersistenceFailed("close", err)
	}
	return saveErr
}
