// Package cleanup runs the periodic backstop sweep. The unload beacon and the
// explicit new-conversation reset handle the common cases; the sweep catches
// whatever those signals miss.
package cleanup

import (
	"context"
	"log"
	"time"

	"hrchat/internal/filestore"
	"hrchat/internal/session"
)

const DefaultSweepInterval = 30 * time.Minute

// Sweeper evicts idle sessions and stale files on a fixed interval.
type Sweeper struct {
	registry      *session.Registry
	files         *filestore.Store
	interval      time.Duration
	sessionMaxAge time.Duration
	fileMaxAge    time.Duration
	onSweep       func(sessions, files int)
}

// NewSweeper builds a sweeper over the two stores. maxAge values of zero fall
// back to two hours.
func NewSweeper(registry *session.Registry, files *filestore.Store, interval, sessionMaxAge, fileMaxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if sessionMaxAge <= 0 {
		sessionMaxAge = 2 * time.Hour
	}
	if fileMaxAge <= 0 {
		fileMaxAge = 2 * time.Hour
	}
	return &Sweeper{
		registry:      registry,
		files:         files,
		interval:      interval,
		sessionMaxAge: sessionMaxAge,
		fileMaxAge:    fileMaxAge,
	}
}

// OnSweep registers a hook that observes each sweep's deletion counts.
func (s *Sweeper) OnSweep(fn func(sessions, files int)) {
	s.onSweep = fn
}

// Start launches the sweep loop. It stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow runs one sweep pass and returns the deletion counts. Files of
// swept sessions go with their session; leftover files are additionally swept
// on their own age so a long-lived session does not keep stale uploads alive.
func (s *Sweeper) SweepNow() (sessions, files int) {
	swept := s.registry.Sweep(s.sessionMaxAge)
	sessions = len(swept)
	for _, id := range swept {
		files += s.files.Clear(id)
	}
	files += s.files.Sweep(s.fileMaxAge)
	if sessions > 0 || files > 0 {
		log.Printf("cleanup: removed %d expired sessions, %d stale files", sessions, files)
	}
	if s.onSweep != nil {
		s.onSweep(sessions, files)
	}
	return sessions, files
}
