// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	activities  map[billing.ActivityID]billing.Activity
	students    map[billing.StudentID]billing.Student
	enrollments map[billing.EnrollmentID]billing.Enrollment
	staff       map[billing.StaffID]billing.Staff
	staffRules  map[billing.StaffID]billing.StaffRuleHistory
	manualRates map[billing.StaffID]billing.ManualRateHistory

	attendance   map[attKey]billing.Attendance
	journal      map[journalKey]billing.JournalEntry
	transactions map[txKey]billing.Transaction
}

type attKey struct {
	EnrollmentID billing.EnrollmentID
	Date         billing.Date
}

type journalKey struct {
	StaffID    billing.StaffID
	ActivityID billing.ActivityID // empty = global
	Date       billing.Date
}

type txKey struct {
	StudentID  billing.StudentID
	ActivityID billing.ActivityID
	Date       billing.Date
}

func NewMemory() *Memory {
	return &Memory{
		activities:   make(map[billing.ActivityID]billing.Activity),
		students:     make(map[billing.StudentID]billing.Student),
		enrollments:  make(map[billing.EnrollmentID]billing.Enrollment),
		staff:        make(map[billing.StaffID]billing.Staff),
		staffRules:   make(map[billing.StaffID]billing.StaffRuleHistory),
		manualRates:  make(map[billing.StaffID]billing.ManualRateHistory),
		attendance:   make(map[attKey]billing.Attendance),
		journal:      make(map[journalKey]billing.JournalEntry),
		transactions: make(map[txKey]billing.Transaction),
	}
}

var _ billing.Store = (*Memory)(nil)

func (m *Memory) Close() error { return nil }

// -----------------------------------------------------------------------------
// Activities
// -----------------------------------------------------------------------------

func (m *Memory) SaveActivity(_ context.Context, a billing.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
	return nil
}

func (m *Memory) Activity(_ context.Context, id billing.ActivityID) (*billing.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, billing.ErrActivityNotFound
	}
	return &a, nil
}

func (m *Memory) Activities(_ context.Context) ([]billing.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Activity, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddPriceRevision(_ context.Context, id billing.ActivityID, rev billing.PriceRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return billing.ErrActivityNotFound
	}
	a.History = a.History.Append(rev)
	m.activities[id] = a
	return nil
}

// -----------------------------------------------------------------------------
// Students
// -----------------------------------------------------------------------------

func (m *Memory) SaveStudent(_ context.Context, s billing.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *Memory) Student(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, billing.ErrStudentNotFound
	}
	return &s, nil
}

func (m *Memory) Students(_ context.Context) ([]billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Enrollments
// -----------------------------------------------------------------------------

func (m *Memory) SaveEnrollment(_ context.Context, e billing.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = e
	return nil
}

func (m *Memory) Enrollment(_ context.Context, id billing.EnrollmentID) (*billing.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, billing.ErrEnrollmentNotFound
	}
	return &e, nil
}

func (m *Memory) EnrollmentsByStudent(_ context.Context, id billing.StudentID) ([]billing.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) EnrollmentsByActivity(_ context.Context, id billing.ActivityID) ([]billing.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Enrollment
	for _, e := range m.enrollments {
		if e.ActivityID == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Attendance
// -----------------------------------------------------------------------------

func (m *Memory) UpsertAttendance(_ context.Context, a billing.Attendance) (billing.AffectedKeys, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[a.EnrollmentID]
	if !ok {
		return nil, billing.ErrEnrollmentNotFound
	}
	a.Date = a.Date.Normalized()
	m.attendance[attKey{EnrollmentID: a.EnrollmentID, Date: a.Date}] = a
	return billing.AffectedKeys{{
		StudentID:  e.StudentID,
		ActivityID: e.ActivityID,
		Year:       a.Date.Year(),
		Month:      a.Date.Month(),
	}}, nil
}

func (m *Memory) DeleteAttendance(_ context.Context, id billing.EnrollmentID, date billing.Date) (billing.AffectedKeys, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = date.Normalized()
	k := attKey{EnrollmentID: id, Date: date}
	if _, ok := m.attendance[k]; !ok {
		return nil, billing.ErrAttendanceNotFound
	}
	delete(m.attendance, k)

	e, ok := m.enrollments[id]
	if !ok {
		return nil, nil
	}
	// Deleting a mark retracts the linked transaction.
	delete(m.transactions, txKey{StudentID: e.StudentID, ActivityID: e.ActivityID, Date: date})
	return billing.AffectedKeys{{
		StudentID:  e.StudentID,
		ActivityID: e.ActivityID,
		Year:       date.Year(),
		Month:      date.Month(),
	}}, nil
}

func (m *Memory) Attendance(_ context.Context, id billing.EnrollmentID, date billing.Date) (*billing.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attendance[attKey{EnrollmentID: id, Date: date.Normalized()}]
	if !ok {
		return nil, billing.ErrAttendanceNotFound
	}
	return &a, nil
}

func (m *Memory) AttendanceForMonth(_ context.Context, id billing.ActivityID, year int, month time.Month) ([]billing.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Attendance
	for k, a := range m.attendance {
		e, ok := m.enrollments[k.EnrollmentID]
		if !ok || e.ActivityID != id {
			continue
		}
		if a.Date.Year() == year && a.Date.Month() == month {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EnrollmentID < out[j].EnrollmentID
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Staff
// -----------------------------------------------------------------------------

func (m *Memory) SaveStaff(_ context.Context, s billing.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) Staff(_ context.Context, id billing.StaffID) (*billing.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[id]
	if !ok {
		return nil, billing.ErrStaffNotFound
	}
	return &s, nil
}

func (m *Memory) AllStaff(_ context.Context) ([]billing.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddStaffRule(_ context.Context, r billing.StaffRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[r.StaffID]; !ok {
		return billing.ErrStaffNotFound
	}
	m.staffRules[r.StaffID] = m.staffRules[r.StaffID].Append(r)
	return nil
}

func (m *Memory) StaffRules(_ context.Context, id billing.StaffID) ([]billing.StaffRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]billing.StaffRule{}, m.staffRules[id]...), nil
}

func (m *Memory) AddManualRate(_ context.Context, r billing.ManualRateRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[r.StaffID]; !ok {
		return billing.ErrStaffNotFound
	}
	m.manualRates[r.StaffID] = m.manualRates[r.StaffID].Append(r)
	return nil
}

func (m *Memory) ManualRates(_ context.Context, id billing.StaffID) ([]billing.ManualRateRevision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]billing.ManualRateRevision{}, m.manualRates[id]...), nil
}

// -----------------------------------------------------------------------------
// Journal
// -----------------------------------------------------------------------------

func (m *Memory) UpsertJournalEntry(_ context.Context, e billing.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Date = e.Date.Normalized()
	k := journalKey{StaffID: e.StaffID, Date: e.Date}
	if e.ActivityID != nil {
		k.ActivityID = *e.ActivityID
	}
	if existing, ok := m.journal[k]; ok && existing.IsManualOverride && !e.IsManualOverride {
		return billing.ErrManualOverride
	}
	m.journal[k] = e
	return nil
}

func (m *Memory) JournalForMonth(_ context.Context, id billing.StaffID, year int, month time.Month) ([]billing.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.JournalEntry
	for _, e := range m.journal {
		if e.StaffID == id && e.Date.Year() == year && e.Date.Month() == month {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (m *Memory) SetAutoIncome(_ context.Context, studentID billing.StudentID, activityID billing.ActivityID, date billing.Date, amount decimal.Decimal, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = date.Normalized()
	k := txKey{StudentID: studentID, ActivityID: activityID, Date: date}
	tx, ok := m.transactions[k]
	if !ok {
		tx = billing.Transaction{
			ID:         string(studentID) + "/" + string(activityID) + "/" + date.String(),
			Type:       billing.TxIncome,
			StudentID:  studentID,
			ActivityID: activityID,
			Date:       date,
			Auto:       true,
		}
	}
	tx.Amount = amount
	tx.Description = description
	m.transactions[k] = tx
	return nil
}

func (m *Memory) ClearAutoIncome(_ context.Context, studentID billing.StudentID, activityID billing.ActivityID, date billing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, txKey{StudentID: studentID, ActivityID: activityID, Date: date.Normalized()})
	return nil
}

func (m *Memory) Transactions(_ context.Context, studentID billing.StudentID, from, to billing.Date) ([]billing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Transaction
	for _, tx := range m.transactions {
		if tx.StudentID != studentID {
			continue
		}
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
