// server.go carries the HTTP/WebSocket surface: one WebSocket per client
// per document, plus snapshot and frontier endpoints.
//
// Per-document FIFO toward the coordinator is preserved because each
// connection's read loop submits synchronously and the coordinator
// enqueues in submission order. Writes to a connection go through a
// single writer goroutine; gorilla/websocket does not allow concurrent
// writers.
package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rvoss/coedit/pkg/broadcast"
	"github.com/rvoss/coedit/pkg/coordinator"
	"github.com/rvoss/coedit/pkg/model"
	"github.com/rvoss/coedit/pkg/render"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type server struct {
	coord *coordinator.Coordinator
	bcast broadcast.Broadcaster
}

// inboundMsg is a client frame: an operation submission or an
// acknowledgment of the highest version the client has integrated.
type inboundMsg struct {
	Type    string `json:"type"` // "op" | "ack"
	Version int64  `json:"version,omitempty"`
	model.Submit
}

// outboundMsg is a server frame.
type outboundMsg struct {
	Type     string              `json:"type"` // "snapshot" | "confirm" | "applied" | "reject"
	Version  int64               `json:"version,omitempty"`
	OpID     string              `json:"op_id,omitempty"`
	Segments []model.Segment     `json:"segments,omitempty"`
	Text     string              `json:"text,omitempty"`
	Confirm  *model.Confirmation `json:"confirm,omitempty"`
	Reject   *model.Rejection    `json:"reject,omitempty"`
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc"]
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("coeditd: upgrade: %v", err)
		return
	}
	defer conn.Close()

	sess, err := s.coord.Attach(docID, clientID)
	if err != nil {
		log.Printf("coeditd: attach %s: %v", docID, err)
		return
	}
	defer s.coord.Detach(sess)

	send := make(chan outboundMsg, 256)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					// Unblocks the read loop, which exits on the next read.
					conn.Close()
					return
				}
			case <-quit:
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}
	}()

	// enqueue hands a frame to the writer; a full buffer means the writer
	// is gone or the client cannot keep up, and the connection is cut.
	enqueue := func(msg outboundMsg) bool {
		select {
		case send <- msg:
			return true
		default:
			conn.Close()
			return false
		}
	}

	// Bootstrap the client from the current snapshot.
	snap, err := s.coord.Snapshot(docID)
	if err != nil {
		log.Printf("coeditd: snapshot %s: %v", docID, err)
		return
	}
	if !enqueue(outboundMsg{
		Type:     "snapshot",
		Version:  snap.Version,
		Segments: snap.Segments,
		Text:     render.Text(snap.Segments),
	}) {
		return
	}

	// Forward confirmed operations for this document. A closed
	// subscription means this client fell too far behind and must
	// reconnect for a fresh snapshot.
	confirms, cancel, err := s.bcast.Subscribe(r.Context(), docID)
	if err != nil {
		log.Printf("coeditd: subscribe %s: %v", docID, err)
		return
	}
	defer cancel()
	go func() {
		for {
			select {
			case c, ok := <-confirms:
				if !ok {
					conn.Close()
					return
				}
				select {
				case send <- outboundMsg{Type: "confirm", Confirm: &c}:
				case <-quit:
					return
				default:
					// Writer buffer full: the client is hopelessly
					// behind; cut it off to force a snapshot reconnect.
					conn.Close()
					return
				}
			case <-quit:
				return
			}
		}
	}()

	for {
		var msg inboundMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "ack":
			sess.Ack(msg.Version)
		case "op":
			res, err := s.coord.Submit(r.Context(), sess, msg.Submit)
			if err != nil {
				return
			}
			switch {
			case res.Rejection != nil:
				if !enqueue(outboundMsg{Type: "reject", Reject: res.Rejection}) {
					return
				}
			case res.Canceled:
				return
			default:
				// The submitter has observed its own applied version.
				sess.Ack(res.Version)
				if !enqueue(outboundMsg{Type: "applied", OpID: msg.OpID, Version: res.Version}) {
					return
				}
			}
		default:
			log.Printf("coeditd: %s: unknown frame type %q", clientID, msg.Type)
		}
	}
}

// handleSnapshot serves the versioned snapshot clients resynchronize
// from after a protocol violation or a dropped subscription.
func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc"]
	snap, err := s.coord.Snapshot(docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"doc_id":   snap.DocID,
		"version":  snap.Version,
		"segments": snap.Segments,
		"text":     render.Text(snap.Segments),
	})
}

func (s *server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc"]
	st, err := s.coord.Frontier(docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("coeditd: encode response: %v", err)
	}
}
