// Package session manages the exclusive project link required by the
// platform control CLI.
//
// The control tool supports exactly one linked project at a time, which
// makes the link the binding shared resource of a reconciliation run.
// Manager models it as explicit state: acquiring a session for a new
// environment first releases whatever is currently linked (best effort),
// so no two operations ever run against different environments under the
// same link.
package session

import (
	"context"
	"fmt"
	"log"
	"os"

	"stacksync/internal/platform"
)

// Session is an exclusive authenticated link to one environment.
// Obtained from Manager.Acquire, invalidated by Manager.Release or by a
// later Acquire for a different environment.
type Session struct {
	// Env is the linked environment.
	Env platform.Environment

	// Degraded is true when the link was established without credential
	// material. Degraded sessions cannot use local-file strategies that
	// need database access.
	Degraded bool

	active bool
}

// Active reports whether the session still holds the link.
func (s *Session) Active() bool {
	return s != nil && s.active
}

// Manager acquires and releases sessions, tracking which environment is
// currently linked. Not safe for concurrent use; the run model is
// sequential by design.
type Manager struct {
	cli     platform.ControlCLI
	logger  *log.Logger
	current *Session
}

// NewManager creates a Manager on top of the control CLI.
// If logger is nil, a default logger writing to stderr is used.
func NewManager(cli platform.ControlCLI, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Manager{cli: cli, logger: logger}
}

// Acquire links env and returns the session. Every call performs the
// link, even when env is already the linked environment: relinking is
// cheap and repairs tool state that was broken behind the manager's
// back.
//
// If a session for a different environment is active it is released
// first, best effort: a failed unlink is logged and the new link
// proceeds anyway, since a stale unlink on the tool's side does not
// prevent a fresh link. Re-acquiring the same environment skips the
// unlink; the fresh link supersedes the old one directly.
//
// When env carries no credential the link is attempted credential-less
// and the returned session is flagged Degraded.
func (m *Manager) Acquire(ctx context.Context, env platform.Environment) (*Session, error) {
	if m.current.Active() {
		if m.current.Env.ProjectRef == env.ProjectRef {
			m.current.active = false
			m.current = nil
		} else if err := m.Release(ctx, m.current); err != nil {
			m.logger.Printf("WARNING: releasing link to %s before relink failed: %v",
				m.current.Env.Name, err)
		}
	}

	withCredential := env.Password != ""
	if err := m.cli.Link(ctx, env, withCredential); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", platform.ErrLinkFailed, env.Name, err)
	}

	s := &Session{
		Env:      env,
		Degraded: !withCredential,
		active:   true,
	}
	m.current = s

	if s.Degraded {
		m.logger.Printf("WARNING: linked %s without credentials; local-file strategies may be skipped", env.Name)
	} else {
		m.logger.Printf("linked %s (%s)", env.Name, env.ProjectRef)
	}
	return s, nil
}

// Release unlinks the session. Releasing an already-released or foreign
// session is a no-op. Exactly one unlink call reaches the tool.
func (m *Manager) Release(ctx context.Context, s *Session) error {
	if !s.Active() || s != m.current {
		return nil
	}
	s.active = false
	m.current = nil

	if err := m.cli.Unlink(ctx); err != nil {
		return fmt.Errorf("unlinking %s: %w", s.Env.Name, err)
	}
	m.logger.Printf("unlinked %s", s.Env.Name)
	return nil
}

// ReleaseCurrent unlinks whatever session is active, if any. Used at
// run teardown where the caller does not hold the session value.
func (m *Manager) ReleaseCurrent(ctx context.Context) error {
	return m.Release(ctx, m.current)
}

// Current returns the environment currently linked, or nil.
func (m *Manager) Current() *platform.Environment {
	if !m.current.Active() {
		return nil
	}
	env := m.current.Env
	return &env
}
