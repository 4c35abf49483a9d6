/*
Package sqlite provides a SQLite-backed implementation of the billing
storage interfaces.

PURPOSE:
  Implements billing.Store using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  activities:         Rule-set owners with teacher-payment fallbacks
  price_history:      Activity rule revisions (insert-only)
  students:           Student records
  enrollments:        Student-to-activity links with price overrides
  attendance:         One row per (enrollment, date); upsert = last write wins
  staff:              Staff members with their deduction lists
  staff_rules:        Effective-dated compensation rules
  staff_manual_rates: Parallel history for manually paid staff
  staff_journal:      Salary accruals per (staff, activity, date)
  transactions:       Financial records, incl. the auto-generated rows

INVARIANTS ENFORCED HERE:
  - idx_auto_income: at most ONE auto-generated income transaction per
    (student, activity, date). SetAutoIncome upserts against it;
    ClearAutoIncome and DeleteAttendance retract it.
  - AddStaffRule closes the previously open rule for the same
    (staff, activity) scope the day before the new rule starts, in the
    same SQL transaction that inserts the new rule. Closed revisions are
    never touched again.
  - UpsertJournalEntry refuses to overwrite a manual override with a
    recomputed amount.

AFFECTED KEYS:
  Attendance mutations return the (student, activity, month) aggregate
  keys they touched so callers can target recomputation.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Concurrent edits to the same
  attendance cell resolve last-write-wins at the upsert.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better read
  concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/center.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ billing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases are per-connection in this driver.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'income',
		rules_json TEXT NOT NULL DEFAULT '{}',
		custom_statuses_json TEXT NOT NULL DEFAULT '[]',
		default_price TEXT NOT NULL DEFAULT '0',
		teacher_payment_percent REAL NOT NULL DEFAULT 0,
		fixed_teacher_rate TEXT NOT NULL DEFAULT '0',
		teacher_id TEXT,
		config_json TEXT
	);

	-- Rule revisions are insert-only: a closed interval is implied by the
	-- next revision's start date and never edited.
	CREATE TABLE IF NOT EXISTS price_history (
		activity_id TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		PRIMARY KEY (activity_id, effective_from)
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		activity_id TEXT NOT NULL,
		custom_price TEXT,
		discount_percent REAL NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_student
		ON enrollments(student_id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_activity
		ON enrollments(activity_id);

	-- Keyed by (enrollment, date): last write wins.
	CREATE TABLE IF NOT EXISTS attendance (
		enrollment_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT,
		value TEXT,
		charged_amount TEXT,
		manual_value_edit INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (enrollment_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance(date);

	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		deductions_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS staff_rules (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		activity_id TEXT,
		rate_type TEXT NOT NULL,
		rate TEXT NOT NULL,
		lesson_limit INTEGER NOT NULL DEFAULT 0,
		penalty_trigger_percent REAL NOT NULL DEFAULT 0,
		penalty_percent REAL NOT NULL DEFAULT 0,
		extra_lesson_rate TEXT,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_staff_rules_staff
		ON staff_rules(staff_id, effective_from);

	CREATE TABLE IF NOT EXISTS staff_manual_rates (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		rate_type TEXT NOT NULL,
		value TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	-- activity_id '' stands in for NULL so the uniqueness key works.
	CREATE TABLE IF NOT EXISTS staff_journal (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		activity_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		deductions_json TEXT NOT NULL DEFAULT '[]',
		notes_json TEXT NOT NULL DEFAULT '[]',
		is_manual_override INTEGER NOT NULL DEFAULT 0,
		UNIQUE (staff_id, activity_id, date)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		student_id TEXT NOT NULL,
		activity_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		auto INTEGER NOT NULL DEFAULT 0
	);

	-- CRITICAL: at most one auto-generated income transaction per
	-- (student, activity, date). Created, updated and deleted in lockstep
	-- with the attendance charge.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_auto_income
		ON transactions(student_id, activity_id, date)
		WHERE auto = 1;

	CREATE INDEX IF NOT EXISTS idx_transactions_student
		ON transactions(student_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (s *Store) SaveActivity(ctx context.Context, a billing.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rulesJSON, err := json.Marshal(a.Rules)
	if err != nil {
		return err
	}
	statusesJSON, err := json.Marshal(a.CustomStatuses)
	if err != nil {
		return err
	}
	var configJSON sql.NullString
	if a.Config != nil {
		b, err := json.Marshal(a.Config)
		if err != nil {
			return err
		}
		configJSON = sql.NullString{String: string(b), Valid: true}
	}
	var teacherID sql.NullString
	if a.TeacherID != nil {
		teacherID = sql.NullString{String: string(*a.TeacherID), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities
			(id, name, category, rules_json, custom_statuses_json,
			 default_price, teacher_payment_percent, fixed_teacher_rate,
			 teacher_id, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			rules_json = excluded.rules_json,
			custom_statuses_json = excluded.custom_statuses_json,
			default_price = excluded.default_price,
			teacher_payment_percent = excluded.teacher_payment_percent,
			fixed_teacher_rate = excluded.fixed_teacher_rate,
			teacher_id = excluded.teacher_id,
			config_json = excluded.config_json`,
		string(a.ID), a.Name, string(a.Category), string(rulesJSON), string(statusesJSON),
		a.DefaultPrice.String(), a.TeacherPaymentPercent, a.FixedTeacherRate.String(),
		teacherID, configJSON)
	return err
}

func (s *Store) Activity(ctx context.Context, id billing.ActivityID) (*billing.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, rules_json, custom_statuses_json,
		       default_price, teacher_payment_percent, fixed_teacher_rate,
		       teacher_id, config_json
		FROM activities WHERE id = ?`, string(id))

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}

	history, err := s.priceHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	a.History = history
	return a, nil
}

func (s *Store) Activities(ctx context.Context) ([]billing.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, rules_json, custom_statuses_json,
		       default_price, teacher_payment_percent, fixed_teacher_rate,
		       teacher_id, config_json
		FROM activities ORDER BY id`)
	if err != nil {
		return nil, err
	}

	// Buffer all rows before loading histories: the result set holds the
	// connection, and priceHistory needs one of its own.
	var out []billing.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		history, err := s.priceHistory(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].History = history
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*billing.Activity, error) {
	var (
		a            billing.Activity
		id, category string
		rulesJSON    string
		statusesJSON string
		defaultPrice string
		fixedRate    string
		teacherID    sql.NullString
		configJSON   sql.NullString
	)
	err := row.Scan(&id, &a.Name, &category, &rulesJSON, &statusesJSON,
		&defaultPrice, &a.TeacherPaymentPercent, &fixedRate, &teacherID, &configJSON)
	if err != nil {
		return nil, err
	}

	a.ID = billing.ActivityID(id)
	a.Category = billing.Category(category)
	a.DefaultPrice = billing.MustParseDecimal(defaultPrice)
	a.FixedTeacherRate = billing.MustParseDecimal(fixedRate)
	if err := json.Unmarshal([]byte(rulesJSON), &a.Rules); err != nil {
		return nil, fmt.Errorf("activity %s: bad rules json: %w", id, err)
	}
	if err := json.Unmarshal([]byte(statusesJSON), &a.CustomStatuses); err != nil {
		return nil, fmt.Errorf("activity %s: bad custom statuses json: %w", id, err)
	}
	if teacherID.Valid {
		tid := billing.StaffID(teacherID.String)
		a.TeacherID = &tid
	}
	if configJSON.Valid {
		var cfg billing.ControllerConfig
		if err := json.Unmarshal([]byte(configJSON.String), &cfg); err != nil {
			return nil, fmt.Errorf("activity %s: bad config json: %w", id, err)
		}
		a.Config = &cfg
	}
	return &a, nil
}

func (s *Store) AddPriceRevision(ctx context.Context, id billing.ActivityID, rev billing.PriceRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM activities WHERE id = ?`, string(id)).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return billing.ErrActivityNotFound
	}

	rulesJSON, err := json.Marshal(rev.Rules)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO price_history (activity_id, effective_from, rules_json)
		VALUES (?, ?, ?)
		ON CONFLICT(activity_id, effective_from) DO UPDATE SET
			rules_json = excluded.rules_json`,
		string(id), rev.EffectiveFrom.Normalized().String(), string(rulesJSON))
	return err
}

func (s *Store) priceHistory(ctx context.Context, id billing.ActivityID) (billing.PriceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT effective_from, rules_json
		FROM price_history WHERE activity_id = ?
		ORDER BY effective_from`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history billing.PriceHistory
	for rows.Next() {
		var fromStr, rulesJSON string
		if err := rows.Scan(&fromStr, &rulesJSON); err != nil {
			return nil, err
		}
		from, err := billing.ParseDate(fromStr)
		if err != nil {
			return nil, err
		}
		var rules billing.RuleSet
		if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
			return nil, err
		}
		history = append(history, billing.PriceRevision{Rules: rules, EffectiveFrom: from})
	}
	return history, rows.Err()
}

// =============================================================================
// STUDENTS
// =============================================================================

func (s *Store) SaveStudent(ctx context.Context, st billing.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		string(st.ID), st.Name)
	return err
}

func (s *Store) Student(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st billing.Student
	var sid string
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM students WHERE id = ?`, string(id)).
		Scan(&sid, &st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	st.ID = billing.StudentID(sid)
	return &st, nil
}

func (s *Store) Students(ctx context.Context) ([]billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Student
	for rows.Next() {
		var st billing.Student
		var sid string
		if err := rows.Scan(&sid, &st.Name); err != nil {
			return nil, err
		}
		st.ID = billing.StudentID(sid)
		out = append(out, st)
	}
	return out, rows.Err()
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

func (s *Store) SaveEnrollment(ctx context.Context, e billing.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var customPrice sql.NullString
	if e.CustomPrice != nil {
		customPrice = sql.NullString{String: e.CustomPrice.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, student_id, activity_id, custom_price, discount_percent, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			student_id = excluded.student_id,
			activity_id = excluded.activity_id,
			custom_price = excluded.custom_price,
			discount_percent = excluded.discount_percent,
			is_active = excluded.is_active`,
		string(e.ID), string(e.StudentID), string(e.ActivityID),
		customPrice, e.DiscountPercent, boolToInt(e.IsActive))
	return err
}

func (s *Store) Enrollment(ctx context.Context, id billing.EnrollmentID) (*billing.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enrollmentLocked(ctx, id)
}

func (s *Store) EnrollmentsByStudent(ctx context.Context, id billing.StudentID) ([]billing.Enrollment, error) {
	return s.enrollmentsWhere(ctx, `student_id = ?`, string(id))
}

func (s *Store) EnrollmentsByActivity(ctx context.Context, id billing.ActivityID) ([]billing.Enrollment, error) {
	return s.enrollmentsWhere(ctx, `activity_id = ?`, string(id))
}

func (s *Store) enrollmentsWhere(ctx context.Context, where string, arg any) ([]billing.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, activity_id, custom_price, discount_percent, is_active
		FROM enrollments WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEnrollment(row rowScanner) (*billing.Enrollment, error) {
	var (
		e                billing.Enrollment
		id, student, act string
		customPrice      sql.NullString
		isActive         int
	)
	err := row.Scan(&id, &student, &act, &customPrice, &e.DiscountPercent, &isActive)
	if err != nil {
		return nil, err
	}
	e.ID = billing.EnrollmentID(id)
	e.StudentID = billing.StudentID(student)
	e.ActivityID = billing.ActivityID(act)
	e.IsActive = isActive != 0
	if customPrice.Valid {
		d := billing.MustParseDecimal(customPrice.String)
		e.CustomPrice = &d
	}
	return &e, nil
}

// enrollmentLocked reads an enrollment while a lock is already held.
func (s *Store) enrollmentLocked(ctx context.Context, id billing.EnrollmentID) (*billing.Enrollment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, activity_id, custom_price, discount_percent, is_active
		FROM enrollments WHERE id = ?`, string(id))
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrEnrollmentNotFound
	}
	return e, err
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (s *Store) UpsertAttendance(ctx context.Context, a billing.Attendance) (billing.AffectedKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.enrollmentLocked(ctx, a.EnrollmentID)
	if err != nil {
		return nil, err
	}

	a.Date = a.Date.Normalized()
	var status, value, charged sql.NullString
	if a.Status != nil {
		status = sql.NullString{String: string(*a.Status), Valid: true}
	}
	if a.Value != nil {
		value = sql.NullString{String: a.Value.String(), Valid: true}
	}
	if a.ChargedAmount != nil {
		charged = sql.NullString{String: a.ChargedAmount.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attendance (enrollment_id, date, status, value, charged_amount, manual_value_edit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(enrollment_id, date) DO UPDATE SET
			status = excluded.status,
			value = excluded.value,
			charged_amount = excluded.charged_amount,
			manual_value_edit = excluded.manual_value_edit`,
		string(a.EnrollmentID), a.Date.String(), status, value, charged, boolToInt(a.ManualValueEdit))
	if err != nil {
		return nil, err
	}

	return billing.AffectedKeys{{
		StudentID:  e.StudentID,
		ActivityID: e.ActivityID,
		Year:       a.Date.Year(),
		Month:      a.Date.Month(),
	}}, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id billing.EnrollmentID, date billing.Date) (billing.AffectedKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.enrollmentLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	date = date.Normalized()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM attendance WHERE enrollment_id = ? AND date = ?`,
		string(id), date.String())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, billing.ErrAttendanceNotFound
	}

	// Retract the linked auto-generated transaction.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE auto = 1 AND student_id = ? AND activity_id = ? AND date = ?`,
		string(e.StudentID), string(e.ActivityID), date.String())
	if err != nil {
		return nil, err
	}

	return billing.AffectedKeys{{
		StudentID:  e.StudentID,
		ActivityID: e.ActivityID,
		Year:       date.Year(),
		Month:      date.Month(),
	}}, nil
}

func (s *Store) Attendance(ctx context.Context, id billing.EnrollmentID, date billing.Date) (*billing.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT enrollment_id, date, status, value, charged_amount, manual_value_edit
		FROM attendance WHERE enrollment_id = ? AND date = ?`,
		string(id), date.Normalized().String())
	a, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrAttendanceNotFound
	}
	return a, err
}

func (s *Store) AttendanceForMonth(ctx context.Context, id billing.ActivityID, year int, month time.Month) ([]billing.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := billing.StartOfMonth(year, month)
	end := billing.EndOfMonth(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.enrollment_id, a.date, a.status, a.value, a.charged_amount, a.manual_value_edit
		FROM attendance a
		JOIN enrollments e ON e.id = a.enrollment_id
		WHERE e.activity_id = ? AND a.date >= ? AND a.date <= ?
		ORDER BY a.date, a.enrollment_id`,
		string(id), start.String(), end.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAttendance(row rowScanner) (*billing.Attendance, error) {
	var (
		a               billing.Attendance
		id, dateStr     string
		status          sql.NullString
		value, charged  sql.NullString
		manualValueEdit int
	)
	err := row.Scan(&id, &dateStr, &status, &value, &charged, &manualValueEdit)
	if err != nil {
		return nil, err
	}
	a.EnrollmentID = billing.EnrollmentID(id)
	date, err := billing.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	a.Date = date
	a.ManualValueEdit = manualValueEdit != 0
	if status.Valid {
		st := billing.Status(status.String)
		a.Status = &st
	}
	if value.Valid {
		d := billing.MustParseDecimal(value.String)
		a.Value = &d
	}
	if charged.Valid {
		d := billing.MustParseDecimal(charged.String)
		a.ChargedAmount = &d
	}
	return &a, nil
}

// =============================================================================
// STAFF
// =============================================================================

func (s *Store) SaveStaff(ctx context.Context, st billing.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deductionsJSON, err := json.Marshal(st.Deductions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, deductions_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			deductions_json = excluded.deductions_json`,
		string(st.ID), st.Name, string(deductionsJSON))
	return err
}

func (s *Store) Staff(ctx context.Context, id billing.StaffID) (*billing.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staffLocked(ctx, id)
}

func (s *Store) staffLocked(ctx context.Context, id billing.StaffID) (*billing.Staff, error) {
	var st billing.Staff
	var sid, deductionsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, deductions_json FROM staff WHERE id = ?`, string(id)).
		Scan(&sid, &st.Name, &deductionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	st.ID = billing.StaffID(sid)
	if err := json.Unmarshal([]byte(deductionsJSON), &st.Deductions); err != nil {
		return nil, fmt.Errorf("staff %s: bad deductions json: %w", sid, err)
	}
	return &st, nil
}

func (s *Store) AllStaff(ctx context.Context) ([]billing.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, deductions_json FROM staff ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Staff
	for rows.Next() {
		var st billing.Staff
		var sid, deductionsJSON string
		if err := rows.Scan(&sid, &st.Name, &deductionsJSON); err != nil {
			return nil, err
		}
		st.ID = billing.StaffID(sid)
		if err := json.Unmarshal([]byte(deductionsJSON), &st.Deductions); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AddStaffRule inserts a rule and closes the previously open rule with
// the same (staff, activity) scope the day before the new start, in one
// SQL transaction.
func (s *Store) AddStaffRule(ctx context.Context, r billing.StaffRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.staffLocked(ctx, r.StaffID); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.EffectiveFrom = r.EffectiveFrom.Normalized()
	dayBefore := r.EffectiveFrom.AddDays(-1)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	scopeWhere := `activity_id IS NULL`
	args := []any{dayBefore.String(), string(r.StaffID)}
	if r.ActivityID != nil {
		scopeWhere = `activity_id = ?`
		args = append(args, string(*r.ActivityID))
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE staff_rules SET effective_to = ?
		WHERE staff_id = ? AND `+scopeWhere+` AND effective_to IS NULL`, args...)
	if err != nil {
		return err
	}

	var activityID, extraRate, effectiveTo sql.NullString
	if r.ActivityID != nil {
		activityID = sql.NullString{String: string(*r.ActivityID), Valid: true}
	}
	if r.ExtraLessonRate != nil {
		extraRate = sql.NullString{String: r.ExtraLessonRate.String(), Valid: true}
	}
	if r.EffectiveTo != nil {
		effectiveTo = sql.NullString{String: r.EffectiveTo.Normalized().String(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO staff_rules
			(id, staff_id, activity_id, rate_type, rate, lesson_limit,
			 penalty_trigger_percent, penalty_percent, extra_lesson_rate,
			 effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.StaffID), activityID, string(r.RateType), r.Rate.String(),
		r.LessonLimit, r.PenaltyTriggerPercent, r.PenaltyPercent, extraRate,
		r.EffectiveFrom.String(), effectiveTo)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) StaffRules(ctx context.Context, id billing.StaffID) ([]billing.StaffRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, activity_id, rate_type, rate, lesson_limit,
		       penalty_trigger_percent, penalty_percent, extra_lesson_rate,
		       effective_from, effective_to
		FROM staff_rules WHERE staff_id = ? ORDER BY effective_from`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.StaffRule
	for rows.Next() {
		var (
			r                        billing.StaffRule
			rid, sid, rateType, rate string
			fromStr                  string
			activityID, extra, toStr sql.NullString
		)
		err := rows.Scan(&rid, &sid, &activityID, &rateType, &rate, &r.LessonLimit,
			&r.PenaltyTriggerPercent, &r.PenaltyPercent, &extra, &fromStr, &toStr)
		if err != nil {
			return nil, err
		}
		r.ID = rid
		r.StaffID = billing.StaffID(sid)
		r.RateType = billing.StaffRateType(rateType)
		r.Rate = billing.MustParseDecimal(rate)
		if activityID.Valid {
			aid := billing.ActivityID(activityID.String)
			r.ActivityID = &aid
		}
		if extra.Valid {
			d := billing.MustParseDecimal(extra.String)
			r.ExtraLessonRate = &d
		}
		from, err := billing.ParseDate(fromStr)
		if err != nil {
			return nil, err
		}
		r.EffectiveFrom = from
		if toStr.Valid {
			to, err := billing.ParseDate(toStr.String)
			if err != nil {
				return nil, err
			}
			r.EffectiveTo = &to
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AddManualRate(ctx context.Context, r billing.ManualRateRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.staffLocked(ctx, r.StaffID); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.EffectiveFrom = r.EffectiveFrom.Normalized()
	dayBefore := r.EffectiveFrom.AddDays(-1)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE staff_manual_rates SET effective_to = ?
		WHERE staff_id = ? AND effective_to IS NULL`,
		dayBefore.String(), string(r.StaffID))
	if err != nil {
		return err
	}

	var effectiveTo sql.NullString
	if r.EffectiveTo != nil {
		effectiveTo = sql.NullString{String: r.EffectiveTo.Normalized().String(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO staff_manual_rates (id, staff_id, rate_type, value, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.StaffID), string(r.RateType), r.Value.String(),
		r.EffectiveFrom.String(), effectiveTo)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ManualRates(ctx context.Context, id billing.StaffID) ([]billing.ManualRateRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, rate_type, value, effective_from, effective_to
		FROM staff_manual_rates WHERE staff_id = ? ORDER BY effective_from`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.ManualRateRevision
	for rows.Next() {
		var (
			r                         billing.ManualRateRevision
			rid, sid, rateType, value string
			fromStr                   string
			toStr                     sql.NullString
		)
		if err := rows.Scan(&rid, &sid, &rateType, &value, &fromStr, &toStr); err != nil {
			return nil, err
		}
		r.ID = rid
		r.StaffID = billing.StaffID(sid)
		r.RateType = billing.ManualRateType(rateType)
		r.Value = billing.MustParseDecimal(value)
		from, err := billing.ParseDate(fromStr)
		if err != nil {
			return nil, err
		}
		r.EffectiveFrom = from
		if toStr.Valid {
			to, err := billing.ParseDate(toStr.String)
			if err != nil {
				return nil, err
			}
			r.EffectiveTo = &to
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// JOURNAL
// =============================================================================

func (s *Store) UpsertJournalEntry(ctx context.Context, e billing.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Date = e.Date.Normalized()
	activityID := ""
	if e.ActivityID != nil {
		activityID = string(*e.ActivityID)
	}

	// A manual override is only replaced by another manual entry.
	var existingManual int
	err := s.db.QueryRowContext(ctx, `
		SELECT is_manual_override FROM staff_journal
		WHERE staff_id = ? AND activity_id = ? AND date = ?`,
		string(e.StaffID), activityID, e.Date.String()).Scan(&existingManual)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err == nil && existingManual != 0 && !e.IsManualOverride {
		return billing.ErrManualOverride
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	deductionsJSON, err := json.Marshal(e.Deductions)
	if err != nil {
		return err
	}
	notesJSON, err := json.Marshal(e.Notes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staff_journal
			(id, staff_id, activity_id, date, amount, base_amount,
			 deductions_json, notes_json, is_manual_override)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(staff_id, activity_id, date) DO UPDATE SET
			amount = excluded.amount,
			base_amount = excluded.base_amount,
			deductions_json = excluded.deductions_json,
			notes_json = excluded.notes_json,
			is_manual_override = excluded.is_manual_override`,
		e.ID, string(e.StaffID), activityID, e.Date.String(),
		e.Amount.String(), e.BaseAmount.String(),
		string(deductionsJSON), string(notesJSON), boolToInt(e.IsManualOverride))
	return err
}

func (s *Store) JournalForMonth(ctx context.Context, id billing.StaffID, year int, month time.Month) ([]billing.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := billing.StartOfMonth(year, month)
	end := billing.EndOfMonth(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, activity_id, date, amount, base_amount,
		       deductions_json, notes_json, is_manual_override
		FROM staff_journal
		WHERE staff_id = ? AND date >= ? AND date <= ?
		ORDER BY date, activity_id`, string(id), start.String(), end.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.JournalEntry
	for rows.Next() {
		var (
			e                         billing.JournalEntry
			eid, sid, aid, dateStr    string
			amount, base              string
			deductionsJSON, notesJSON string
			isManual                  int
		)
		err := rows.Scan(&eid, &sid, &aid, &dateStr, &amount, &base,
			&deductionsJSON, &notesJSON, &isManual)
		if err != nil {
			return nil, err
		}
		e.ID = eid
		e.StaffID = billing.StaffID(sid)
		if aid != "" {
			a := billing.ActivityID(aid)
			e.ActivityID = &a
		}
		date, err := billing.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		e.Date = date
		e.Amount = billing.MustParseDecimal(amount)
		e.BaseAmount = billing.MustParseDecimal(base)
		e.IsManualOverride = isManual != 0
		if err := json.Unmarshal([]byte(deductionsJSON), &e.Deductions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(notesJSON), &e.Notes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) SetAutoIncome(ctx context.Context, studentID billing.StudentID, activityID billing.ActivityID, date billing.Date, amount decimal.Decimal, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, tx_type, student_id, activity_id, date, amount, description, auto)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(student_id, activity_id, date) WHERE auto = 1 DO UPDATE SET
			amount = excluded.amount,
			description = excluded.description`,
		uuid.NewString(), string(billing.TxIncome), string(studentID), string(activityID),
		date.Normalized().String(), amount.String(), description)
	return err
}

func (s *Store) ClearAutoIncome(ctx context.Context, studentID billing.StudentID, activityID billing.ActivityID, date billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE auto = 1 AND student_id = ? AND activity_id = ? AND date = ?`,
		string(studentID), string(activityID), date.Normalized().String())
	return err
}

func (s *Store) Transactions(ctx context.Context, studentID billing.StudentID, from, to billing.Date) ([]billing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_type, student_id, activity_id, date, amount, description, auto
		FROM transactions
		WHERE student_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`,
		string(studentID), from.Normalized().String(), to.Normalized().String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Transaction
	for rows.Next() {
		var (
			tx                   billing.Transaction
			txType, student, act string
			dateStr, amount      string
			auto                 int
		)
		err := rows.Scan(&tx.ID, &txType, &student, &act, &dateStr, &amount, &tx.Description, &auto)
		if err != nil {
			return nil, err
		}
		tx.Type = billing.TransactionType(txType)
		tx.StudentID = billing.StudentID(student)
		tx.ActivityID = billing.ActivityID(act)
		date, err := billing.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		tx.Date = date
		tx.Amount = billing.MustParseDecimal(amount)
		tx.Auto = auto != 0
		out = append(out, tx)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
