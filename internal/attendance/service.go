package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"classcheckin/internal/auth"
	"classcheckin/internal/directory"
	"classcheckin/internal/metrics"
	"classcheckin/internal/queue"
)

// CourseDirectory resolves courses and their enrolled students.
type CourseDirectory interface {
	ResolveCourse(ctx context.Context, courseID string) (directory.Course, error)
	ListEnrolledStudents(ctx context.Context, courseID string) ([]string, error)
}

// Service is the single source of truth for session and record state.
type Service struct {
	repo      Repository
	courses   CourseDirectory
	policy    GracePolicy
	scheduler Scheduler
	events    queue.Queue
	cache     SummaryCache
	newCode   func() (string, error)
	now       func() time.Time
	locks     *keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithGracePolicy sets the on-time policy.
func WithGracePolicy(p GracePolicy) Option { return func(s *Service) { s.policy = p } }

// WithScheduler replaces the expiry timer implementation.
func WithScheduler(sch Scheduler) Option { return func(s *Service) { s.scheduler = sch } }

// WithEvents publishes state changes to q.
func WithEvents(q queue.Queue) Option { return func(s *Service) { s.events = q } }

// WithSummaryCache caches summaries of ended sessions.
func WithSummaryCache(c SummaryCache) Option { return func(s *Service) { s.cache = c } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCodeGenerator replaces NewSessionCode.
func WithCodeGenerator(gen func() (string, error)) Option { return func(s *Service) { s.newCode = gen } }

// NewService creates a service backed by a repository and a course directory.
func NewService(repo Repository, courses CourseDirectory, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		courses: courses,
		policy:  DefaultGracePolicy(),
		newCode: NewSessionCode,
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = NewTimerScheduler(s.now)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// CreateSession starts a check-in session for a course and materialises an
// absent record for every enrolled student.
func (s *Service) CreateSession(ctx context.Context, p auth.Principal, courseID string, durationMinutes int) (Session, error) {
	if !p.Role.CanManageSessions() {
		return Session{}, ErrUnauthorized
	}
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return Session{}, ErrInvalidDuration
	}
	course, err := s.courses.ResolveCourse(ctx, courseID)
	if err != nil {
		return Session{}, courseError("resolve course", err)
	}
	if p.Role == auth.RoleTeacher && course.TeacherID != p.UserID {
		return Session{}, ErrUnauthorized
	}
	students, err := s.courses.ListEnrolledStudents(ctx, course.ID)
	if err != nil {
		return Session{}, courseError("list enrolled students", err)
	}

	sess := Session{
		ID:              uuid.NewString(),
		CourseID:        course.ID,
		CreatedBy:       p.UserID,
		StartTime:       s.clock(),
		DurationMinutes: durationMinutes,
		Status:          StatusActive,
	}
	records := materialize(sess.ID, students)

	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return Session{}, transient("create session", errors.New("no free session code"))
		}
		code, err := s.newCode()
		if err != nil {
			return Session{}, transient("generate code", err)
		}
		sess.Code = code
		err = s.repo.CreateSession(ctx, sess, records)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return Session{}, transient("create session", err)
		}
		break
	}

	s.arm(sess)
	metrics.SessionsCreated.Inc()
	log.Printf("session %s (%s) started for course %s: %d students, %d min", sess.ID, sess.Code, sess.CourseID, len(records), durationMinutes)
	s.publish(ctx, EventSessionCreated, Event{SessionID: sess.ID, CourseID: sess.CourseID, At: sess.StartTime})
	return sess, nil
}

func materialize(sessionID string, students []string) []Record {
	seen := make(map[string]bool, len(students))
	records := make([]Record, 0, len(students))
	for _, id := range students {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		records = append(records, Record{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			StudentID: id,
			Status:    RecordAbsent,
		})
	}
	return records
}

func courseError(op string, err error) error {
	if errors.Is(err, directory.ErrCourseNotFound) {
		return ErrCourseNotFound
	}
	return transient(op, err)
}

// EndSession ends a session by hand. Ending an already ended session succeeds
// with AlreadyEnded set. A session past its deadline is recorded as expired,
// since the expiry happened first.
func (s *Service) EndSession(ctx context.Context, p auth.Principal, sessionID string) (EndResult, error) {
	if !p.Role.CanManageSessions() {
		return EndResult{}, ErrUnauthorized
	}
	var out outbox
	defer s.flush(ctx, &out)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return EndResult{}, transient("get session", err)
	}
	if err := s.Authorize(ctx, p, sess); err != nil {
		return EndResult{}, err
	}
	if !sess.Active() {
		return EndResult{Session: sess, AlreadyEnded: true}, nil
	}

	now := s.clock()
	if sess.Overdue(now) {
		ended, err := s.endLocked(ctx, &out, sess, sess.Deadline(), EndExpired)
		if err != nil {
			return EndResult{}, err
		}
		return EndResult{Session: ended, AlreadyEnded: true}, nil
	}
	ended, err := s.endLocked(ctx, &out, sess, now, EndManual)
	if err != nil {
		return EndResult{}, err
	}
	return EndResult{Session: ended}, nil
}

// Authorize allows admins and the teacher who owns the session's course.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, sess Session) error {
	if p.IsAdmin() {
		return nil
	}
	if p.Role != auth.RoleTeacher {
		return ErrUnauthorized
	}
	course, err := s.courses.ResolveCourse(ctx, sess.CourseID)
	switch {
	case errors.Is(err, directory.ErrCourseNotFound):
		// The course is gone; the session's creator keeps control of it.
		if sess.CreatedBy == p.UserID {
			return nil
		}
		return ErrUnauthorized
	case err != nil:
		return transient("resolve course", err)
	case course.TeacherID != p.UserID:
		return ErrUnauthorized
	}
	return nil
}

// endLocked transitions sess to ended. The caller holds the session lock and
// flushes out once it is released.
func (s *Service) endLocked(ctx context.Context, out *outbox, sess Session, at time.Time, reason EndReason) (Session, error) {
	ended, changed, err := s.repo.EndSession(ctx, sess.ID, at, reason)
	if err != nil {
		return Session{}, transient("end session", err)
	}
	s.scheduler.Cancel(sess.ID)
	if changed {
		metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()
		log.Printf("session %s (%s) ended: %s", ended.ID, ended.Code, reason)
		out.add(EventSessionEnded, Event{SessionID: ended.ID, CourseID: ended.CourseID, At: at, Reason: reason})
	}
	return ended, nil
}

// expire is the timer and sweeper path. It is a no-op for ended sessions and
// re-arms the timer when it fires before the deadline.
func (s *Service) expire(ctx context.Context, sessionID string) {
	var out outbox
	defer s.flush(ctx, &out)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("expire session %s: %v", sessionID, err)
		return
	}
	if !sess.Active() {
		return
	}
	if !sess.Overdue(s.clock()) {
		s.arm(sess)
		return
	}
	if _, err := s.endLocked(ctx, &out, sess, sess.Deadline(), EndExpired); err != nil {
		log.Printf("expire session %s: %v", sessionID, err)
	}
}

// settle expires sess if it is overdue and returns its current state.
func (s *Service) settle(ctx context.Context, sess Session) (Session, error) {
	if !sess.Overdue(s.clock()) {
		return sess, nil
	}
	var out outbox
	defer s.flush(ctx, &out)
	unlock := s.locks.Lock(sess.ID)
	defer unlock()
	current, err := s.repo.GetSession(ctx, sess.ID)
	if err != nil {
		return Session{}, transient("get session", err)
	}
	if !current.Overdue(s.clock()) {
		return current, nil
	}
	return s.endLocked(ctx, &out, current, current.Deadline(), EndExpired)
}

func (s *Service) arm(sess Session) {
	id := sess.ID
	s.scheduler.Schedule(id, sess.Deadline(), func() {
		s.expire(context.Background(), id)
	})
}

// RecordCheckin checks a student into the session identified by code. A
// repeated check-in returns the stored record with AlreadyCheckedIn set.
func (s *Service) RecordCheckin(ctx context.Context, code, studentID string) (CheckinResult, error) {
	found, err := s.repo.GetSessionByCode(ctx, code)
	if err != nil {
		return CheckinResult{}, transient("find session", err)
	}

	var out outbox
	defer s.flush(ctx, &out)
	unlock := s.locks.Lock(found.ID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, found.ID)
	if err != nil {
		return CheckinResult{}, transient("get session", err)
	}
	now := s.clock()
	if sess.Overdue(now) {
		if _, err := s.endLocked(ctx, &out, sess, sess.Deadline(), EndExpired); err != nil {
			return CheckinResult{}, err
		}
		metrics.CheckinRejections.WithLabelValues("session_ended").Inc()
		return CheckinResult{}, ErrSessionEnded
	}
	if !sess.Active() {
		metrics.CheckinRejections.WithLabelValues("session_ended").Inc()
		return CheckinResult{}, ErrSessionEnded
	}

	rec, applied, err := s.repo.MarkCheckin(ctx, sess.ID, studentID, now, s.policy.Classify(sess, now))
	if err != nil {
		if errors.Is(err, ErrStudentNotEnrolled) {
			metrics.CheckinRejections.WithLabelValues("not_enrolled").Inc()
		}
		return CheckinResult{}, transient("mark checkin", err)
	}
	if !applied {
		metrics.CheckinRejections.WithLabelValues("already_checked_in").Inc()
		return CheckinResult{Record: rec, AlreadyCheckedIn: true}, nil
	}
	metrics.Checkins.WithLabelValues(string(rec.Status)).Inc()
	out.add(EventCheckinRecorded, Event{SessionID: sess.ID, CourseID: sess.CourseID, StudentID: studentID, At: now, Record: rec.Status})
	return CheckinResult{Record: rec}, nil
}

// ManualCheckin lets the owning teacher or an admin set a student's status
// while the session is active. Absent clears the check-in time.
func (s *Service) ManualCheckin(ctx context.Context, p auth.Principal, sessionID, studentID string, status RecordStatus) (Record, error) {
	if !p.Role.CanManageSessions() {
		return Record{}, ErrUnauthorized
	}
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	var out outbox
	defer s.flush(ctx, &out)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Record{}, transient("get session", err)
	}
	if err := s.Authorize(ctx, p, sess); err != nil {
		return Record{}, err
	}
	now := s.clock()
	if sess.Overdue(now) {
		if _, err := s.endLocked(ctx, &out, sess, sess.Deadline(), EndExpired); err != nil {
			return Record{}, err
		}
		return Record{}, ErrSessionEnded
	}
	if !sess.Active() {
		return Record{}, ErrSessionEnded
	}

	var at *time.Time
	if status != RecordAbsent {
		at = &now
	}
	rec, err := s.repo.SetRecord(ctx, sessionID, studentID, at, status)
	if err != nil {
		return Record{}, transient("set record", err)
	}
	log.Printf("session %s: %s marked %s by %s", sessionID, studentID, status, p.UserID)
	out.add(EventCheckinRecorded, Event{SessionID: sessionID, CourseID: sess.CourseID, StudentID: studentID, At: now, Record: status})
	return rec, nil
}

// GetSession returns the current state of a session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, transient("get session", err)
	}
	return s.settle(ctx, sess)
}

// GetSessionByCode returns the public view of the session behind a code.
func (s *Service) GetSessionByCode(ctx context.Context, code string) (SessionInfo, error) {
	sess, err := s.repo.GetSessionByCode(ctx, code)
	if err != nil {
		return SessionInfo{}, transient("find session", err)
	}
	if sess, err = s.settle(ctx, sess); err != nil {
		return SessionInfo{}, err
	}
	info := SessionInfo{Session: sess}
	course, err := s.courses.ResolveCourse(ctx, sess.CourseID)
	switch {
	case err == nil:
		info.CourseName, info.CourseCode = course.Name, course.Code
	case !errors.Is(err, directory.ErrCourseNotFound):
		return SessionInfo{}, transient("resolve course", err)
	}
	return info, nil
}

// ListSessions returns sessions newest first. Overdue sessions in scope are
// expired before a status filter is applied, so filtering and paging see
// settled rows.
func (s *Service) ListSessions(ctx context.Context, f Filter) ([]Session, error) {
	if f.Status != "" {
		if err := s.expireOverdue(ctx, Filter{CourseID: f.CourseID, CreatedBy: f.CreatedBy, Status: StatusActive}); err != nil {
			return nil, err
		}
	}
	sessions, err := s.repo.ListSessions(ctx, f)
	if err != nil {
		return nil, transient("list sessions", err)
	}
	out := sessions[:0]
	for _, sess := range sessions {
		settled, err := s.settle(ctx, sess)
		if err != nil {
			return nil, err
		}
		// A deadline can pass between the two queries.
		if f.Status != "" && settled.Status != f.Status {
			continue
		}
		out = append(out, settled)
	}
	return out, nil
}

func (s *Service) expireOverdue(ctx context.Context, f Filter) error {
	active, err := s.repo.ListSessions(ctx, f)
	if err != nil {
		return transient("list sessions", err)
	}
	now := s.clock()
	for _, sess := range active {
		if sess.Overdue(now) {
			s.expire(ctx, sess.ID)
		}
	}
	return nil
}

// ListRecords returns every record of a session.
func (s *Service) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, transient("list records", err)
	}
	return records, nil
}

// Summary counts present, late and absent records. Summaries of ended
// sessions are final and served from the cache when one is configured.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	if !sess.Active() && s.cache != nil {
		if sum, ok, err := s.cache.Get(ctx, sessionID); err != nil {
			log.Printf("summary cache get %s: %v", sessionID, err)
		} else if ok {
			return sum, nil
		}
	}
	records, err := s.repo.ListRecords(ctx, sessionID)
	if err != nil {
		return Summary{}, transient("list records", err)
	}
	sum := summarize(sess, records)
	if sum.Final && s.cache != nil {
		if err := s.cache.Put(ctx, sum); err != nil {
			log.Printf("summary cache put %s: %v", sessionID, err)
		}
	}
	return sum, nil
}

// Resume re-arms timers for active sessions after a restart and expires the
// ones whose deadline passed while the process was down.
func (s *Service) Resume(ctx context.Context) error {
	active, err := s.repo.ListActiveSessions(ctx)
	if err != nil {
		return transient("list active sessions", err)
	}
	now := s.clock()
	expired := 0
	for _, sess := range active {
		if sess.Overdue(now) {
			s.expire(ctx, sess.ID)
			expired++
			continue
		}
		s.arm(sess)
	}
	log.Printf("resumed %d active sessions, expired %d overdue", len(active)-expired, expired)
	return nil
}

// Sweep expires every overdue session. It backs up the timers.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	active, err := s.repo.ListActiveSessions(ctx)
	if err != nil {
		return 0, transient("list active sessions", err)
	}
	now := s.clock()
	n := 0
	for _, sess := range active {
		if sess.Overdue(now) {
			s.expire(ctx, sess.ID)
			n++
		}
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("sweep expired %d sessions", n)
			}
		}
	}
}

// Close disarms all expiry timers.
func (s *Service) Close() {
	s.scheduler.Stop()
}
