// Package frontier computes the applied-log compaction frontier.
//
// A client only generates operations against versions it has already
// observed, so its base versions are bounded below by its last
// acknowledged version. The frontier, the minimum acknowledged version
// across live sessions, is therefore a version at or below which no
// future operation can ever need a transform basis. Log entries at or
// below the frontier are safe to trim.
//
// With no live sessions every retained entry is trimmable, so the
// frontier is the current document version.
package frontier

// Pointstamp is one live session's progress marker: the client and the
// last version it acknowledged.
type Pointstamp struct {
	ClientID     string `json:"client_id"`
	AckedVersion int64  `json:"acked_version"`
}

// Compute returns the compaction frontier for a document at the given
// current version, over the live sessions' pointstamps. The result is
// clamped to [0, current].
func Compute(current int64, active []Pointstamp) int64 {
	f := current
	for _, p := range active {
		if p.AckedVersion < f {
			f = p.AckedVersion
		}
	}
	if f < 0 {
		f = 0
	}
	return f
}

// Status is the result of a frontier computation, including the sessions
// pinning the log at the frontier (useful for diagnosing a client that
// never acknowledges and so blocks compaction).
type Status struct {
	Frontier int64        `json:"frontier"`
	Pinning  []Pointstamp `json:"pinning,omitempty"`
}

// ComputeStatus returns the frontier together with every session whose
// acknowledged version equals it.
func ComputeStatus(current int64, active []Pointstamp) Status {
	f := Compute(current, active)
	st := Status{Frontier: f}
	for _, p := range active {
		if p.AckedVersion <= f {
			st.Pinning = append(st.Pinning, p)
		}
	}
	return st
}
