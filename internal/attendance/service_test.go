package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheckin/internal/auth"
	"classcheckin/internal/directory"
	"classcheckin/internal/queue"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type armed struct {
	at   time.Time
	fire func()
}

// manualScheduler only fires when the test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers map[string]armed
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{timers: make(map[string]armed)}
}

func (m *manualScheduler) Schedule(id string, at time.Time, fire func()) {
	m.mu.Lock()
	m.timers[id] = armed{at: at, fire: fire}
	m.mu.Unlock()
}

func (m *manualScheduler) Cancel(id string) {
	m.mu.Lock()
	delete(m.timers, id)
	m.mu.Unlock()
}

func (m *manualScheduler) Stop() {
	m.mu.Lock()
	m.timers = make(map[string]armed)
	m.mu.Unlock()
}

func (m *manualScheduler) armedAt(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.timers[id]
	return a.at, ok
}

// fire runs the callback armed for id regardless of its deadline.
func (m *manualScheduler) fire(id string) bool {
	m.mu.Lock()
	a, ok := m.timers[id]
	delete(m.timers, id)
	m.mu.Unlock()
	if ok {
		a.fire()
	}
	return ok
}

type fakeDirectory struct {
	mu       sync.Mutex
	courses  map[string]directory.Course
	students map[string][]string
	err      error
}

func (d *fakeDirectory) ResolveCourse(_ context.Context, id string) (directory.Course, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return directory.Course{}, d.err
	}
	c, ok := d.courses[id]
	if !ok {
		return directory.Course{}, directory.ErrCourseNotFound
	}
	return c, nil
}

func (d *fakeDirectory) ListEnrolledStudents(_ context.Context, id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.students[id], nil
}

type harness struct {
	svc     *Service
	repo    *MemoryRepository
	dir     *fakeDirectory
	clock   *fakeClock
	sched   *manualScheduler
	events  *queue.InMemory
	teacher auth.Principal
	admin   auth.Principal
	other   auth.Principal
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		repo:  NewMemoryRepository(),
		clock: &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		sched: newManualScheduler(),
		dir: &fakeDirectory{
			courses: map[string]directory.Course{
				"c1": {ID: "c1", Code: "CS101", Name: "Intro", TeacherID: "t1"},
			},
			students: map[string][]string{"c1": {"s1", "s2", "s3"}},
		},
		events:  queue.NewInMemory(64),
		teacher: auth.Principal{UserID: "t1", Role: auth.RoleTeacher},
		admin:   auth.Principal{UserID: "a1", Role: auth.RoleAdmin},
		other:   auth.Principal{UserID: "t2", Role: auth.RoleTeacher},
	}
	base := []Option{WithClock(h.clock.Now), WithScheduler(h.sched), WithEvents(h.events)}
	h.svc = NewService(h.repo, h.dir, append(base, opts...)...)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) start(t *testing.T, minutes int) Session {
	t.Helper()
	s, err := h.svc.CreateSession(context.Background(), h.teacher, "c1", minutes)
	require.NoError(t, err)
	return s
}

func recordsByStudent(t *testing.T, h *harness, sessionID string) map[string]Record {
	t.Helper()
	records, err := h.svc.ListRecords(context.Background(), sessionID)
	require.NoError(t, err)
	out := make(map[string]Record, len(records))
	for _, r := range records {
		out[r.StudentID] = r
	}
	return out
}

func TestSessionLifecycleWithExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)
	assert.Equal(t, StatusActive, s.Status)
	assert.Len(t, s.Code, codeLength)
	assert.Nil(t, s.EndTime)

	records := recordsByStudent(t, h, s.ID)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, RecordAbsent, r.Status)
		assert.Nil(t, r.CheckinTime)
	}

	at, ok := h.sched.armedAt(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.Deadline(), at)

	h.clock.Advance(2 * time.Minute)
	res, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)
	assert.Equal(t, RecordPresent, res.Record.Status)
	assert.False(t, res.AlreadyCheckedIn)

	h.clock.Advance(5 * time.Minute)
	res, err = h.svc.RecordCheckin(ctx, s.Code, "s2")
	require.NoError(t, err)
	assert.Equal(t, RecordLate, res.Record.Status)

	h.clock.Advance(4 * time.Minute)
	require.True(t, h.sched.fire(s.ID))

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
	assert.Equal(t, EndExpired, got.EndReason)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(s.Deadline()))

	records = recordsByStudent(t, h, s.ID)
	assert.Equal(t, RecordAbsent, records["s3"].Status)
	assert.Nil(t, records["s3"].CheckinTime)

	sum, err := h.svc.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, Summary{SessionID: s.ID, Total: 3, Present: 1, Late: 1, Absent: 1, Final: true}, sum)
}

func TestManualEndRejectsLaterCheckins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	h.clock.Advance(3 * time.Minute)
	res, err := h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyEnded)
	assert.Equal(t, StatusEnded, res.Session.Status)
	assert.Equal(t, EndManual, res.Session.EndReason)
	require.NotNil(t, res.Session.EndTime)
	assert.True(t, res.Session.EndTime.Equal(s.StartTime.Add(3*time.Minute)))

	_, armed := h.sched.armedAt(s.ID)
	assert.False(t, armed, "ending a session disarms its timer")

	_, err = h.svc.RecordCheckin(ctx, s.Code, "s3")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestCreateSessionValidatesDuration(t *testing.T) {
	h := newHarness(t)
	for _, minutes := range []int{0, -1, 61} {
		_, err := h.svc.CreateSession(context.Background(), h.teacher, "c1", minutes)
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d", minutes)
		assert.Equal(t, KindValidation, KindOf(err))
	}
	for _, minutes := range []int{1, 60} {
		_, err := h.svc.CreateSession(context.Background(), h.teacher, "c1", minutes)
		assert.NoError(t, err, "duration %d", minutes)
	}
}

func TestConcurrentCheckinAppliesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	const callers = 8
	results := make([]CheckinResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.RecordCheckin(ctx, s.Code, "s1")
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].AlreadyCheckedIn {
			applied++
		}
		assert.Equal(t, RecordPresent, results[i].Record.Status)
	}
	assert.Equal(t, 1, applied)
}

func TestCheckinRacingEndNeverLandsAfterEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	var wg sync.WaitGroup
	var checkinErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, checkinErr = h.svc.RecordCheckin(ctx, s.Code, "s1")
	}()
	go func() {
		defer wg.Done()
		_, _ = h.svc.EndSession(ctx, h.teacher, s.ID)
	}()
	wg.Wait()

	records := recordsByStudent(t, h, s.ID)
	if checkinErr == nil {
		assert.Equal(t, RecordPresent, records["s1"].Status)
	} else {
		assert.ErrorIs(t, checkinErr, ErrSessionEnded)
		assert.Equal(t, RecordAbsent, records["s1"].Status)
	}
}

func TestLazyExpiryOnCheckin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 5)

	// The timer never fires; the check-in itself notices the deadline passed.
	h.clock.Advance(5 * time.Minute)
	_, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	assert.ErrorIs(t, err, ErrSessionEnded)

	got, err := h.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
	assert.Equal(t, EndExpired, got.EndReason)
	assert.True(t, got.EndTime.Equal(s.Deadline()))
}

func TestCheckinAtGraceBoundaryIsPresent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	h.clock.Advance(5 * time.Minute)
	res, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)
	assert.Equal(t, RecordPresent, res.Record.Status)

	h.clock.Advance(time.Second)
	res, err = h.svc.RecordCheckin(ctx, s.Code, "s2")
	require.NoError(t, err)
	assert.Equal(t, RecordLate, res.Record.Status)
}

func TestRepeatedCheckinKeepsFirstTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	h.clock.Advance(time.Minute)
	first, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)

	h.clock.Advance(6 * time.Minute)
	again, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyCheckedIn)
	assert.Equal(t, RecordPresent, again.Record.Status)
	assert.True(t, again.Record.CheckinTime.Equal(*first.Record.CheckinTime))
}

func TestCheckinErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	_, err := h.svc.RecordCheckin(ctx, "NOSUCHCD", "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = h.svc.RecordCheckin(ctx, s.Code, "stranger")
	assert.ErrorIs(t, err, ErrStudentNotEnrolled)
	assert.Equal(t, "student_not_enrolled", Code(err))
}

func TestEndSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	first, err := h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnded)
	assert.Equal(t, first.Session.EndTime, second.Session.EndTime)

	// A stale timer firing after a manual end changes nothing.
	h.svc.expire(ctx, s.ID)
	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, EndManual, got.EndReason)
}

func TestLateManualEndRecordsExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 2)

	h.clock.Advance(3 * time.Minute)
	res, err := h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyEnded)
	assert.Equal(t, EndExpired, res.Session.EndReason)
	assert.True(t, res.Session.EndTime.Equal(s.Deadline()))
}

func TestEarlyTimerRearms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	h.clock.Advance(4 * time.Minute)
	require.True(t, h.sched.fire(s.ID))

	got, err := h.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	at, ok := h.sched.armedAt(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.Deadline(), at)
}

func TestSessionAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	student := auth.Principal{UserID: "s1", Role: auth.RoleStudent}

	_, err := h.svc.CreateSession(ctx, student, "c1", 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.svc.CreateSession(ctx, h.other, "c1", 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	s, err := h.svc.CreateSession(ctx, h.admin, "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.CreatedBy)

	_, err = h.svc.EndSession(ctx, h.other, s.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.svc.EndSession(ctx, student, s.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.svc.ManualCheckin(ctx, h.other, s.ID, "s1", RecordPresent)
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyEnded)
}

func TestCreateSessionUnknownCourse(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateSession(context.Background(), h.admin, "nope", 10)
	assert.ErrorIs(t, err, ErrCourseNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateSessionDirectoryFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.dir.err = errors.New("connection refused")

	_, err := h.svc.CreateSession(ctx, h.teacher, "c1", 10)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, KindTransient, KindOf(err))

	sessions, err := h.repo.ListSessions(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCreateSessionRetriesCodeCollision(t *testing.T) {
	ctx := context.Background()
	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	h := newHarness(t, WithCodeGenerator(gen))

	first := h.start(t, 10)
	second := h.start(t, 10)
	assert.Equal(t, "AAAAAAAA", first.Code)
	assert.Equal(t, "BBBBBBBB", second.Code)

	byCode, err := h.svc.GetSessionByCode(ctx, "BBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, second.ID, byCode.Session.ID)
	assert.Equal(t, "Intro", byCode.CourseName)
	assert.Equal(t, "CS101", byCode.CourseCode)
}

func TestCreateSessionWithoutEnrollments(t *testing.T) {
	h := newHarness(t)
	h.dir.courses["c2"] = directory.Course{ID: "c2", TeacherID: "t1"}
	s, err := h.svc.CreateSession(context.Background(), h.teacher, "c2", 10)
	require.NoError(t, err)
	assert.Empty(t, recordsByStudent(t, h, s.ID))
}

func TestManualCheckin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)

	h.clock.Advance(time.Minute)
	_, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)

	rec, err := h.svc.ManualCheckin(ctx, h.teacher, s.ID, "s1", RecordAbsent)
	require.NoError(t, err)
	assert.Equal(t, RecordAbsent, rec.Status)
	assert.Nil(t, rec.CheckinTime)
	assert.True(t, rec.Manual)

	rec, err = h.svc.ManualCheckin(ctx, h.admin, s.ID, "s2", RecordLate)
	require.NoError(t, err)
	assert.Equal(t, RecordLate, rec.Status)
	require.NotNil(t, rec.CheckinTime)

	_, err = h.svc.ManualCheckin(ctx, h.teacher, s.ID, "s3", "excused")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = h.svc.ManualCheckin(ctx, h.teacher, s.ID, "stranger", RecordPresent)
	assert.ErrorIs(t, err, ErrStudentNotEnrolled)

	_, err = h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	_, err = h.svc.ManualCheckin(ctx, h.teacher, s.ID, "s3", RecordPresent)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestListSessionsExpiresOverdue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	short := h.start(t, 1)
	h.clock.Advance(time.Second)
	long := h.start(t, 30)

	h.clock.Advance(2 * time.Minute)
	sessions, err := h.svc.ListSessions(ctx, Filter{CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, long.ID, sessions[0].ID)
	assert.Equal(t, StatusActive, sessions[0].Status)
	assert.Equal(t, short.ID, sessions[1].ID)
	assert.Equal(t, StatusEnded, sessions[1].Status)

	active, err := h.svc.ListSessions(ctx, Filter{Status: StatusActive, Limit: 10})
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestListSessionsStatusFilterSeesExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	long := h.start(t, 30)
	h.clock.Advance(time.Second)
	short := h.start(t, 5)
	h.clock.Advance(6 * time.Minute)

	// short is the newest row; it must be expired before the page is cut.
	active, err := h.svc.ListSessions(ctx, Filter{Status: StatusActive, Limit: 1})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, long.ID, active[0].ID)
	assert.Equal(t, StatusActive, active[0].Status)

	ended, err := h.svc.ListSessions(ctx, Filter{Status: StatusEnded})
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, short.ID, ended[0].ID)
	assert.Equal(t, EndExpired, ended[0].EndReason)
}

func TestSummaryWhileActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)
	_, err := h.svc.RecordCheckin(ctx, s.Code, "s2")
	require.NoError(t, err)

	sum, err := h.svc.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, sum.Final)
	assert.Equal(t, 1, sum.Present)
	assert.Equal(t, 2, sum.Absent)
}

type mapCache struct {
	mu   sync.Mutex
	sums map[string]Summary
	gets int
}

func (c *mapCache) Get(_ context.Context, id string) (Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.sums[id]
	return s, ok, nil
}

func (c *mapCache) Put(_ context.Context, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sums[s.SessionID] = s
	return nil
}

func TestSummaryCachedOnceFinal(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{sums: make(map[string]Summary)}
	h := newHarness(t, WithSummaryCache(cache))
	s := h.start(t, 10)

	_, err := h.svc.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, cache.sums, "provisional summaries are not cached")

	_, err = h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	sum, err := h.svc.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, sum.Final)
	assert.Equal(t, sum, cache.sums[s.ID])

	cache.sums[s.ID] = Summary{SessionID: s.ID, Total: 99, Final: true}
	sum, err = h.svc.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, sum.Total)
}

func TestResumeRearmsAndExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	overdue := h.start(t, 1)
	live := h.start(t, 30)

	// A fresh service over the same repository stands in for a restart.
	sched := newManualScheduler()
	restarted := NewService(h.repo, h.dir, WithClock(h.clock.Now), WithScheduler(sched))
	h.clock.Advance(5 * time.Minute)
	require.NoError(t, restarted.Resume(ctx))

	got, err := h.repo.GetSession(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
	assert.Equal(t, EndExpired, got.EndReason)

	at, ok := sched.armedAt(live.ID)
	require.True(t, ok)
	assert.Equal(t, live.Deadline(), at)
	_, ok = sched.armedAt(overdue.ID)
	assert.False(t, ok)
}

func TestSweepExpiresOverdue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 1)
	h.start(t, 30)

	n, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(2 * time.Minute)
	n, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, got.Status)
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.start(t, 10)
	_, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
	require.NoError(t, err)
	_, err = h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)
	_, err = h.svc.EndSession(ctx, h.teacher, s.ID)
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msgs, err := h.events.Consume(cctx)
	require.NoError(t, err)

	var types []string
	for i := 0; i < 3; i++ {
		select {
		case msg := <-msgs:
			types = append(types, msg.Type)
			evt, err := DecodeEvent(msg)
			require.NoError(t, err)
			assert.Equal(t, s.ID, evt.SessionID)
		case <-cctx.Done():
			t.Fatalf("only got events %v", types)
		}
	}
	assert.Equal(t, []string{EventSessionCreated, EventCheckinRecorded, EventSessionEnded}, types)

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected event %s after a no-op end", msg.Type)
	default:
	}
}

func TestFullEventQueueDoesNotBlockSession(t *testing.T) {
	ctx := context.Background()
	events := queue.NewInMemory(1)
	h := newHarness(t, WithEvents(events))
	s := h.start(t, 10) // session.created fills the queue

	endCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ended := make(chan error, 1)
	go func() {
		_, err := h.svc.EndSession(endCtx, h.teacher, s.ID)
		ended <- err
	}()
	require.Eventually(t, func() bool {
		got, err := h.repo.GetSession(ctx, s.ID)
		return err == nil && !got.Active()
	}, 2*time.Second, 5*time.Millisecond)

	checkin := make(chan error, 1)
	go func() {
		_, err := h.svc.RecordCheckin(ctx, s.Code, "s1")
		checkin <- err
	}()
	select {
	case err := <-checkin:
		assert.ErrorIs(t, err, ErrSessionEnded)
	case <-time.After(2 * time.Second):
		t.Fatal("check-in waited on the ended event")
	}

	// The end call itself is still waiting for queue room; cancelling drops the event.
	cancel()
	select {
	case err := <-ended:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("end did not return")
	}
}
