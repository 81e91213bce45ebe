package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheckin/internal/attendance"
	"classcheckin/internal/queue"
)

type recordingSummarizer struct {
	mu   sync.Mutex
	ids  []string
	err  error
	once sync.Once
	done chan struct{}
}

func newRecordingSummarizer() *recordingSummarizer {
	return &recordingSummarizer{done: make(chan struct{})}
}

func (r *recordingSummarizer) Summary(_ context.Context, id string) (attendance.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.once.Do(func() { close(r.done) })
	return attendance.Summary{SessionID: id, Final: true}, r.err
}

func (r *recordingSummarizer) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func message(t *testing.T, typ string, evt attendance.Event) queue.Message {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return queue.Message{Type: typ, Body: body}
}

func TestHandleSummarizesEndedSessions(t *testing.T) {
	ctx := context.Background()
	s := newRecordingSummarizer()

	require.NoError(t, Handle(ctx, s, message(t, attendance.EventCheckinRecorded, attendance.Event{SessionID: "a", StudentID: "s1"})))
	require.NoError(t, Handle(ctx, s, message(t, attendance.EventSessionEnded, attendance.Event{SessionID: "b", Reason: attendance.EndExpired})))
	assert.Equal(t, []string{"b"}, s.ids)

	s.err = errors.New("db down")
	assert.Error(t, Handle(ctx, s, message(t, attendance.EventSessionEnded, attendance.Event{SessionID: "c"})))

	assert.Error(t, Handle(ctx, s, queue.Message{Type: attendance.EventSessionEnded, Body: []byte("{")}))
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	s := newRecordingSummarizer()
	require.NoError(t, q.Publish(ctx, message(t, attendance.EventSessionEnded, attendance.Event{SessionID: "x"})))
	require.NoError(t, q.Publish(ctx, message(t, attendance.EventSessionEnded, attendance.Event{SessionID: "y"})))

	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, q, s) }()

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not handled")
	}
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Contains(t, s.seen(), "x")
}
