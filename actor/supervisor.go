package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parley-ai/parley/logging"
)

// SupervisorOptions configure restart and shutdown behavior.
type SupervisorOptions struct {
	// MaxRestarts caps one-for-one restarts per actor within RestartWindow.
	MaxRestarts int
	// RestartWindow is the sliding window for counting restarts.
	RestartWindow time.Duration
	// StopGrace bounds how long Stop waits for actors to drain.
	StopGrace time.Duration
}

type supervised struct {
	actor    *Actor
	restarts []time.Time
}

// Supervisor manages the conversation actors, one per session. Actors are
// spawned on first use and restarted one-for-one from the persisted log when
// their goroutine dies. Restarts are bounded; a session that keeps crashing
// is given up on until the process restarts.
type Supervisor struct {
	deps   Deps
	opts   SupervisorOptions
	logger *logging.RuntimeLogger

	mu      sync.Mutex
	actors  map[string]*supervised
	stopped bool
}

// NewSupervisor creates a supervisor over the shared actor dependencies.
func NewSupervisor(deps Deps, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		MaxRestarts:   3,
		RestartWindow: time.Minute,
		StopGrace:     10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger(nil)
		deps.Logger = logger
	}
	return &Supervisor{
		deps:   deps,
		opts:   opts,
		logger: logger.WithComponent("supervisor"),
		actors: make(map[string]*supervised),
	}
}

// Submit routes one user turn to the session's actor, spawning or restarting
// it first if necessary.
func (s *Supervisor) Submit(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	a, err := s.actorFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return a.Submit(ctx, text)
}

// actorFor returns a live actor for the session. Dead actors are replaced
// one-for-one; the replacement reloads its history from the store, so it
// resumes from the last finalized turn.
func (s *Supervisor) actorFor(ctx context.Context, sessionID string) (*Actor, error) {
	if _, err := s.deps.Store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("supervisor stopped")
	}

	sup, ok := s.actors[sessionID]
	if ok && sup.actor.Alive() {
		return sup.actor, nil
	}

	if ok {
		// The previous actor died; this spawn is a restart.
		now := time.Now()
		recent := sup.restarts[:0]
		for _, ts := range sup.restarts {
			if now.Sub(ts) < s.opts.RestartWindow {
				recent = append(recent, ts)
			}
		}
		sup.restarts = recent
		if len(sup.restarts) >= s.opts.MaxRestarts {
			return nil, fmt.Errorf("session %s: restart limit reached (%d in %s)",
				sessionID, s.opts.MaxRestarts, s.opts.RestartWindow)
		}
		sup.restarts = append(sup.restarts, now)
		s.logger.Warn("restarting conversation actor",
			"session_id", sessionID,
			"restart_count", len(sup.restarts),
			"last_error", errText(sup.actor.Err()),
		)
	} else {
		sup = &supervised{}
		s.actors[sessionID] = sup
	}

	a := NewActor(sessionID, s.deps)
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	sup.actor = a
	return a, nil
}

// ActorState reports the state of the session's actor, if one is running.
func (s *Supervisor) ActorState(sessionID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.actors[sessionID]
	if !ok {
		return "", false
	}
	return sup.actor.State(), true
}

// Evict stops and forgets the session's actor, for example after the session
// was deleted. The persisted log is untouched.
func (s *Supervisor) Evict(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sup, ok := s.actors[sessionID]
	if ok {
		delete(s.actors, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sup.actor.Stop(ctx)
}

// Stop shuts down every actor, waiting up to the grace period for in-flight
// turns to drain. Actors still busy after the grace period are abandoned.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	actors := make([]*Actor, 0, len(s.actors))
	for _, sup := range s.actors {
		actors = append(actors, sup.actor)
	}
	s.actors = make(map[string]*supervised)
	s.mu.Unlock()

	graceCtx, cancel := context.WithTimeout(ctx, s.opts.StopGrace)
	defer cancel()

	var firstErr error
	var wg sync.WaitGroup
	var errMu sync.Mutex
	for _, a := range actors {
		wg.Add(1)
		go func(a *Actor) {
			defer wg.Done()
			if err := a.Stop(graceCtx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(a)
	}
	wg.Wait()
	s.logger.Info("supervisor stopped", "actor_count", len(actors))
	return firstErr
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
