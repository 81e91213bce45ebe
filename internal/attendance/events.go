package attendance

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"classcheckin/internal/queue"
)

// Event types published after a state change commits.
const (
	EventSessionCreated  = "session.created"
	EventSessionEnded    = "session.ended"
	EventCheckinRecorded = "checkin.recorded"
)

// Event is the body of a queue message emitted by the Service.
type Event struct {
	SessionID string       `json:"session_id"`
	CourseID  string       `json:"course_id,omitempty"`
	StudentID string       `json:"student_id,omitempty"`
	At        time.Time    `json:"at"`
	Reason    EndReason    `json:"reason,omitempty"`
	Record    RecordStatus `json:"record_status,omitempty"`
}

// DecodeEvent parses the body of a message published by the Service.
func DecodeEvent(msg queue.Message) (Event, error) {
	var evt Event
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}

func (s *Service) publish(ctx context.Context, typ string, evt Event) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("encode %s event: %v", typ, err)
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Type: typ, Body: body}); err != nil {
		log.Printf("queue publish %s for session %s failed: %v", typ, evt.SessionID, err)
	}
}

type pendingEvent struct {
	typ string
	evt Event
}

// outbox holds events raised under a session lock. Flushing it after the
// lock is released keeps a slow or full queue from stalling the session.
type outbox []pendingEvent

func (o *outbox) add(typ string, evt Event) {
	*o = append(*o, pendingEvent{typ: typ, evt: evt})
}

func (s *Service) flush(ctx context.Context, o *outbox) {
	for _, p := range *o {
		s.publish(ctx, p.typ, p.evt)
	}
	*o = nil
}
