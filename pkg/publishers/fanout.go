package publishers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Route sends reports of the listed kinds to a publisher. No kinds means
// every report.
type Route struct {
	Publisher Publisher
	Kinds     []string
}

func (r Route) wants(kind string) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Delivery tallies one fan-out.
type Delivery struct {
	Sent    int
	Skipped int
	Failed  int
}

// Fanout delivers each report to every route that wants it, concurrently.
type Fanout struct {
	routes []Route
}

// NewFanout drops routes without a publisher.
func NewFanout(routes ...Route) *Fanout {
	kept := make([]Route, 0, len(routes))
	for _, r := range routes {
		if r.Publisher != nil {
			kept = append(kept, r)
		}
	}
	return &Fanout{routes: kept}
}

// Publish delivers evt and joins the errors of the routes that failed.
func (f *Fanout) Publish(ctx context.Context, evt Event) (Delivery, error) {
	var d Delivery
	if f == nil {
		return d, nil
	}

	errs := make([]error, len(f.routes))
	var g errgroup.Group
	for i, r := range f.routes {
		if !r.wants(evt.Kind) {
			d.Skipped++
			continue
		}
		g.Go(func() error {
			if err := r.Publisher.Publish(ctx, evt); err != nil {
				errs[i] = fmt.Errorf("%s sink %s: %w", r.Publisher.Type(), r.Publisher.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range f.routes {
		if !r.wants(evt.Kind) {
			continue
		}
		if errs[i] != nil {
			d.Failed++
		} else {
			d.Sent++
		}
	}
	return d, errors.Join(errs...)
}

// Size is the number of routes.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.routes)
}

// Close releases publishers holding connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, r := range f.routes {
		if c, ok := r.Publisher.(closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s sink %s: %w", r.Publisher.Type(), r.Publisher.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
