// Package worker consumes session events and precomputes final summaries.
package worker

import (
	"context"
	"fmt"
	"log"

	"classcheckin/internal/attendance"
	"classcheckin/internal/metrics"
	"classcheckin/internal/queue"
)

// Summarizer computes, and caches once final, the summary of a session.
type Summarizer interface {
	Summary(ctx context.Context, sessionID string) (attendance.Summary, error)
}

// Run consumes q until ctx is done.
func Run(ctx context.Context, q queue.Queue, s Summarizer) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		outcome := "ok"
		if err := Handle(ctx, s, msg); err != nil {
			outcome = "failed"
			log.Printf("handle %s: %v", msg.Type, err)
		}
		metrics.QueueEvents.WithLabelValues(msg.Type, outcome).Inc()
	}
	log.Println("worker stopped")
	return nil
}

// Handle processes one message. Ended sessions get their final summary cached.
func Handle(ctx context.Context, s Summarizer, msg queue.Message) error {
	evt, err := attendance.DecodeEvent(msg)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	switch msg.Type {
	case attendance.EventSessionEnded:
		sum, err := s.Summary(ctx, evt.SessionID)
		if err != nil {
			return fmt.Errorf("summarize session %s: %w", evt.SessionID, err)
		}
		log.Printf("session %s ended (%s): %d present, %d late, %d absent of %d",
			evt.SessionID, evt.Reason, sum.Present, sum.Late, sum.Absent, sum.Total)
	case attendance.EventSessionCreated:
		log.Printf("session %s created for course %s", evt.SessionID, evt.CourseID)
	case attendance.EventCheckinRecorded:
		log.Printf("session %s: %s is %s", evt.SessionID, evt.StudentID, evt.Record)
	default:
		log.Printf("ignoring unknown event type %q", msg.Type)
	}
	return nil
}
