// Package lifecycle starts long running components in order and stops
// them in reverse.
package lifecycle

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type named struct {
	name      string
	component Component
}

type Runtime struct {
	components []named
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}

// Register appends a component; nil components are ignored.
func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, named{name: name, component: component})
}

// Start starts every component. On failure the already started ones are
// stopped and the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	started := make([]named, 0, len(r.components))
	for _, c := range r.components {
		if err := c.component.Start(ctx); err != nil {
			_ = r.stop(ctx, started)
			return errors.WithMessagef(err, "start %s", c.name)
		}
		r.getLogEntry().WithField("component", c.name).Debug("started")
		started = append(started, c)
	}
	return nil
}

// Stop stops every component even if some fail and joins their errors.
func (r *Runtime) Stop(ctx context.Context) error {
	return r.stop(ctx, r.components)
}

func (r *Runtime) stop(ctx context.Context, components []named) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.component.Stop(ctx); err != nil {
			r.getLogEntry().WithError(err).WithField("component", c.name).Warn("stop failed")
			stopErr = stderrors.Join(stopErr, errors.WithMessagef(err, "stop %s", c.name))
			continue
		}
		r.getLogEntry().WithField("component", c.name).Debug("stopped")
	}
	return stopErr
}
