// Package clock implements a Lamport logical clock.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (internal event): Before any internal event, increment the clock.
//	IR2 (message receipt): On receiving a message with timestamp t,
//	     set the clock to max(own, t) + 1.
//
// Each document's coordinator owns one Clock and runs IR2 on every inbound
// operation, so the resolved timestamp stamped on a broadcast is always
// ahead of anything the submitting client had observed.
//
// Wins defines the system-wide last-write-wins total order: later Lamport
// timestamp first, ties broken by client ID. Every replica must apply the
// same rule, never arrival order, or replicas diverge.
//
// Note: Clock is not goroutine-safe. Each instance is owned by a single
// document goroutine, which is the only writer.
package clock

// Clock is a Lamport logical clock. Not goroutine-safe; see package doc.
type Clock struct {
	ts int64
}

// Tick implements IR1: increment the clock before an internal event.
// Returns the new timestamp.
func (c *Clock) Tick() int64 {
	c.ts++
	return c.ts
}

// Receive implements IR2: on receiving a message with timestamp received,
// set the clock to max(own, received) + 1. Returns the new timestamp.
func (c *Clock) Receive(received int64) int64 {
	if received > c.ts {
		c.ts = received
	}
	c.ts++
	return c.ts
}

// Value returns the current clock value without advancing it.
func (c *Clock) Value() int64 { return c.ts }

// Set initializes the clock to a specific value. Used to seed a restored
// document's clock with its snapshot version, which is a lower bound on
// the clock value the document had when the snapshot was taken.
func (c *Clock) Set(v int64) { c.ts = v }

// Wins reports whether the write (tsA, clientA) beats (tsB, clientB) under
// last-write-wins: strictly later timestamp wins; on an exact tie the lower
// client ID (lexicographic) wins. Deterministic and total, so all replicas
// resolve the same conflict identically without coordination.
func Wins(tsA int64, clientA string, tsB int64, clientB string) bool {
	if tsA != tsB {
		return tsA > tsB
	}
	return clientA < clientB
}
