// Package notifications delivers committed workflow events to people: email
// to the affected user and a websocket stream for admin dashboards.
package notifications

import (
	"context"

	"github.com/deepshield/deepshield-api/models"
)

// Publisher receives committed events. Delivery is best effort and never
// reported back to the workflow.
type Publisher interface {
	Publish(ctx context.Context, e models.Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e models.Event)

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, e models.Event) {
	f(ctx, e)
}

// Multi fans an event out to every publisher in order
type Multi []Publisher

// Publish sends e to each publisher
func (m Multi) Publish(ctx context.Context, e models.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}

type async struct {
	next Publisher
}

// Async publishes on a new goroutine, detached from the caller's
// cancellation so a finished request does not abort delivery
func Async(p Publisher) Publisher {
	return async{next: p}
}

func (a async) Publish(ctx context.Context, e models.Event) {
	ctx = context.WithoutCancel(ctx)
	go a.next.Publish(ctx, e)
}

// Detached fans an event out to every publisher, each on its own goroutine,
// so a slow channel never holds up the caller that committed the change
func Detached(ps ...Publisher) Multi {
	m := make(Multi, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			m = append(m, Async(p))
		}
	}
	return m
}
