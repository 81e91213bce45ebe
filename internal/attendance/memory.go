package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory for dev mode and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byCode   map[string]string              // code -> session id
	records  map[string]map[string]*Record // session id -> student id -> record
	order    map[string][]string            // session id -> student ids in creation order
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]Session),
		byCode:   make(map[string]string),
		records:  make(map[string]map[string]*Record),
		order:    make(map[string][]string),
	}
}

func (m *MemoryRepository) CreateSession(_ context.Context, s Session, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[s.Code]; ok {
		return ErrCodeTaken
	}
	byStudent := make(map[string]*Record, len(records))
	order := make([]string, 0, len(records))
	for i := range records {
		r := records[i]
		byStudent[r.StudentID] = &r
		order = append(order, r.StudentID)
	}
	m.sessions[s.ID] = s
	m.byCode[s.Code] = s.ID
	m.records[s.ID] = byStudent
	m.order[s.ID] = order
	return nil
}

func (m *MemoryRepository) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryRepository) GetSessionByCode(_ context.Context, code string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return m.sessions[id], nil
}

func (m *MemoryRepository) ListSessions(_ context.Context, f Filter) ([]Session, error) {
	m.mu.RLock()
	var out []Session
	for _, s := range m.sessions {
		if f.CourseID != "" && s.CourseID != f.CourseID {
			continue
		}
		if f.CreatedBy != "" && s.CreatedBy != f.CreatedBy {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListActiveSessions(ctx context.Context) ([]Session, error) {
	return m.ListSessions(ctx, Filter{Status: StatusActive})
}

func (m *MemoryRepository) EndSession(_ context.Context, id string, at time.Time, reason EndReason) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false, ErrSessionNotFound
	}
	if !s.Active() {
		return s, false, nil
	}
	end := at
	s.Status = StatusEnded
	s.EndTime = &end
	s.EndReason = reason
	m.sessions[id] = s
	return s, true, nil
}

func (m *MemoryRepository) MarkCheckin(_ context.Context, sessionID, studentID string, at time.Time, status RecordStatus) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.activeRecordLocked(sessionID, studentID)
	if err != nil {
		return Record{}, false, err
	}
	if r.CheckedIn() {
		return copyRecord(r), false, nil
	}
	t := at
	r.CheckinTime = &t
	r.Status = status
	return copyRecord(r), true, nil
}

func (m *MemoryRepository) SetRecord(_ context.Context, sessionID, studentID string, at *time.Time, status RecordStatus) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.activeRecordLocked(sessionID, studentID)
	if err != nil {
		return Record{}, err
	}
	if at != nil {
		t := *at
		r.CheckinTime = &t
	} else {
		r.CheckinTime = nil
	}
	r.Status = status
	r.Manual = true
	return copyRecord(r), nil
}

func (m *MemoryRepository) ListRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]Record, 0, len(m.order[sessionID]))
	for _, studentID := range m.order[sessionID] {
		out = append(out, copyRecord(m.records[sessionID][studentID]))
	}
	return out, nil
}

func (m *MemoryRepository) activeRecordLocked(sessionID, studentID string) (*Record, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.Active() {
		return nil, ErrSessionEnded
	}
	r, ok := m.records[sessionID][studentID]
	if !ok {
		return nil, ErrStudentNotEnrolled
	}
	return r, nil
}

func copyRecord(r *Record) Record {
	out := *r
	if r.CheckinTime != nil {
		t := *r.CheckinTime
		out.CheckinTime = &t
	}
	return out
}
