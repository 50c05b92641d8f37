// validate.go builds validated Operations from inbound Submit messages.
//
// Validation happens before an operation enters the coordinator's state
// machine: a malformed submission is rejected with a reason code and never
// partially constructed. Checks that need document state (position past the
// current end, base version ahead of the server) are performed by the
// coordinator and reuse the same Rejection type.
package model

import "github.com/google/uuid"

// ReasonCode classifies why an operation was rejected.
type ReasonCode string

const (
	// MalformedOperation: construction-time validation failures.
	ReasonNegativePosition ReasonCode = "negative_position"
	ReasonEmptyPayload     ReasonCode = "empty_payload"
	ReasonBadLength        ReasonCode = "bad_length"
	ReasonUnknownKind      ReasonCode = "unknown_kind"
	ReasonUnknownElement   ReasonCode = "unknown_element"
	ReasonMissingDoc       ReasonCode = "missing_doc_id"
	ReasonMissingClient    ReasonCode = "missing_client_id"
	ReasonPositionPastEnd  ReasonCode = "position_past_end"

	// ProtocolViolation: the client claims a base version the server has
	// not reached. The client must resynchronize from a snapshot.
	ReasonVersionAhead ReasonCode = "version_ahead"

	// The client's base version predates the compacted portion of the
	// applied log; the transform basis is gone and a snapshot is required.
	ReasonBaseCompacted ReasonCode = "base_compacted"
)

// Rejection is the signal returned for any refused operation. It is local
// to the offending operation and never affects other operations on the
// same document.
type Rejection struct {
	DocID    string     `json:"doc_id"`
	ClientID string     `json:"client_id"`
	OpID     string     `json:"op_id,omitempty"`
	Reason   ReasonCode `json:"reason"`
	Detail   string     `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "operation rejected: " + string(r.Reason)
	}
	return "operation rejected: " + string(r.Reason) + ": " + r.Detail
}

// FromSubmit validates s and constructs the canonical Operation. OpID is
// assigned a UUIDv7 (time-ordered, so IDs sort by creation) when the client
// did not supply one. NewLine and TabSpace payloads are canonicalized to
// their literal control characters regardless of what the client sent.
func FromSubmit(s Submit) (Operation, *Rejection) {
	reject := func(code ReasonCode, detail string) (Operation, *Rejection) {
		return Operation{}, &Rejection{
			DocID:    s.DocID,
			ClientID: s.ClientID,
			OpID:     s.OpID,
			Reason:   code,
			Detail:   detail,
		}
	}

	if s.DocID == "" {
		return reject(ReasonMissingDoc, "")
	}
	if s.ClientID == "" {
		return reject(ReasonMissingClient, "")
	}
	if s.Position < 0 {
		return reject(ReasonNegativePosition, "")
	}

	switch s.Element {
	case ElemText, ElemImage, ElemNewLine, ElemTabSpace:
	default:
		return reject(ReasonUnknownElement, string(s.Element))
	}

	payload := s.Payload
	switch s.Element {
	case ElemNewLine:
		payload = "\n"
	case ElemTabSpace:
		payload = "\t"
	}

	switch s.Kind {
	case OpInsert, OpUpdate:
		if payload == "" {
			return reject(ReasonEmptyPayload, "")
		}
	case OpDelete:
		if s.Length <= 0 {
			return reject(ReasonBadLength, "delete length must be positive")
		}
		payload = ""
	default:
		return reject(ReasonUnknownKind, string(s.Kind))
	}

	id := s.OpID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			// NewV7 only fails if the random source does.
			u = uuid.New()
		}
		id = u.String()
	}

	return Operation{
		ID:           id,
		DocID:        s.DocID,
		ClientID:     s.ClientID,
		BaseVersion:  s.BaseVersion,
		Kind:         s.Kind,
		Position:     s.Position,
		BasePosition: s.Position,
		Payload:      payload,
		Length:       s.Length,
		Element:      s.Element,
		Timestamp:    s.ClientTime,
	}, nil
}
