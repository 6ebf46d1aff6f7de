package engine

import (
	"context"

	"abstriker/cmd/abstriker/construct"
	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
)

// Session is one object universe with its construction machine, bus and
// engine hook.
type Session struct {
	Universe *object.Universe
	Bus      *lifecycle.Bus
	Machine  *construct.Machine
	Hook     *Hook

	engine *Engine
}

// NewSession returns a fresh universe whose construction is monitored by e.
func (e *Engine) NewSession(ctx context.Context) *Session {
	u := object.NewUniverse()
	bus := lifecycle.NewBus()
	hook := e.NewHook(ctx, bus)
	return &Session{
		Universe: u,
		Bus:      bus,
		Machine:  construct.New(u, bus, hook, construct.WithLogger(e.log)),
		Hook:     hook,
		engine:   e,
	}
}

// Engine returns the engine monitoring the session.
func (s *Session) Engine() *Engine { return s.engine }
