// Package broadcast fans confirmed operations out to the connected
// clients of a document.
//
// The coordinator hands each confirmation to a Broadcaster and moves on;
// delivering it to every client is the collaborator's job. Two
// implementations ship: an in-process Hub for single-node deployments and
// a Redis pub/sub bridge (redis.go) for fanning out across nodes.
package broadcast

import (
	"context"
	"sync"

	"github.com/rvoss/coedit/pkg/model"
)

// Broadcaster delivers confirmed operations to all subscribers of a
// document.
type Broadcaster interface {
	// Broadcast publishes one confirmation to every subscriber of its
	// document.
	Broadcast(ctx context.Context, c model.Confirmation) error

	// Subscribe returns a channel of confirmations for docID and a
	// cancel function that releases the subscription.
	Subscribe(ctx context.Context, docID string) (<-chan model.Confirmation, func(), error)

	// Close shuts the broadcaster down and releases all subscriptions.
	Close() error
}

// subscriber buffer; a client that falls this far behind is cut off and
// must resynchronize from a snapshot.
const subscriberBuffer = 256

// Hub is an in-process Broadcaster.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan model.Confirmation]struct{}
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan model.Confirmation]struct{})}
}

// Broadcast delivers c to every live subscriber of its document. A
// subscriber whose buffer is full is dropped rather than allowed to stall
// the document pipeline.
func (h *Hub) Broadcast(_ context.Context, c model.Confirmation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[c.DocID] {
		select {
		case ch <- c:
		default:
			delete(h.subs[c.DocID], ch)
			close(ch)
		}
	}
	return nil
}

// Subscribe registers a new subscriber for docID.
func (h *Hub) Subscribe(_ context.Context, docID string) (<-chan model.Confirmation, func(), error) {
	ch := make(chan model.Confirmation, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if h.subs[docID] == nil {
		h.subs[docID] = make(map[chan model.Confirmation]struct{})
	}
	h.subs[docID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[docID][ch]; ok {
			delete(h.subs[docID], ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Close drops every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.subs {
		for ch := range set {
			close(ch)
		}
	}
	h.subs = make(map[string]map[chan model.Confirmation]struct{})
	return nil
}
