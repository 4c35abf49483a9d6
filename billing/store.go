/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the calculation core and the database.
  The core itself is pure; these interfaces describe the simple filtered
  queries and upserts the surrounding system performs. SQLite and
  in-memory implementations exist; the same patterns apply to PostgreSQL.

LOCKSTEP TRANSACTIONS:
  A non-zero attendance charge is mirrored by exactly one auto-generated
  income transaction per (student, activity, date). SetAutoIncome and
  ClearAutoIncome are the only ways to touch that row, so the at-most-one
  invariant lives in one place. Deleting an attendance mark retracts the
  linked transaction.

AFFECTED KEYS:
  Mutation methods return the set of (student, activity, month) aggregate
  keys they touched. Callers target recomputation at exactly those keys
  instead of invalidating everything.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - billing/store/memory.go: In-memory for tests

SEE ALSO:
  - types.go: The records these interfaces move
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AFFECTED KEYS - Targeted recomputation instead of broad invalidation
// =============================================================================

// AggregateKey identifies one (student, activity, month) aggregate whose
// derived values (charges, monthly totals) a mutation may have changed.
type AggregateKey struct {
	StudentID  StudentID
	ActivityID ActivityID
	Year       int
	Month      time.Month
}

// AffectedKeys is returned by mutating store operations.
type AffectedKeys []AggregateKey

// =============================================================================
// STORE INTERFACES
// =============================================================================

// ActivityStore persists activities and their price history.
type ActivityStore interface {
	SaveActivity(ctx context.Context, a Activity) error
	Activity(ctx context.Context, id ActivityID) (*Activity, error)
	Activities(ctx context.Context) ([]Activity, error)

	// AddPriceRevision appends a revision to the activity's history.
	// The previous revision is closed implicitly by the new start date.
	AddPriceRevision(ctx context.Context, id ActivityID, rev PriceRevision) error
}

// StudentStore persists student records.
type StudentStore interface {
	SaveStudent(ctx context.Context, s Student) error
	Student(ctx context.Context, id StudentID) (*Student, error)
	Students(ctx context.Context) ([]Student, error)
}

// EnrollmentStore persists student-to-activity links.
type EnrollmentStore interface {
	SaveEnrollment(ctx context.Context, e Enrollment) error
	Enrollment(ctx context.Context, id EnrollmentID) (*Enrollment, error)
	EnrollmentsByStudent(ctx context.Context, id StudentID) ([]Enrollment, error)
	EnrollmentsByActivity(ctx context.Context, id ActivityID) ([]Enrollment, error)
}

// AttendanceStore persists the per-day journal. Upserts are keyed by
// (enrollment, date): concurrent edits resolve last-write-wins.
type AttendanceStore interface {
	UpsertAttendance(ctx context.Context, a Attendance) (AffectedKeys, error)
	DeleteAttendance(ctx context.Context, id EnrollmentID, date Date) (AffectedKeys, error)
	Attendance(ctx context.Context, id EnrollmentID, date Date) (*Attendance, error)
	AttendanceForMonth(ctx context.Context, id ActivityID, year int, month time.Month) ([]Attendance, error)
}

// StaffStore persists staff members and their rule histories.
type StaffStore interface {
	SaveStaff(ctx context.Context, s Staff) error
	Staff(ctx context.Context, id StaffID) (*Staff, error)
	AllStaff(ctx context.Context) ([]Staff, error)

	// AddStaffRule appends a rule, closing the previously open rule with
	// the same (staff, activity) scope the day before the new start.
	AddStaffRule(ctx context.Context, r StaffRule) error
	StaffRules(ctx context.Context, id StaffID) ([]StaffRule, error)

	AddManualRate(ctx context.Context, r ManualRateRevision) error
	ManualRates(ctx context.Context, id StaffID) ([]ManualRateRevision, error)
}

// JournalStore persists staff salary accruals.
type JournalStore interface {
	// UpsertJournalEntry writes one (staff, activity, date) accrual.
	// Entries flagged IsManualOverride are never overwritten by
	// recomputation; attempting to do so returns ErrManualOverride.
	UpsertJournalEntry(ctx context.Context, e JournalEntry) error
	JournalForMonth(ctx context.Context, id StaffID, year int, month time.Month) ([]JournalEntry, error)
}

// TransactionStore persists financial transactions, including the
// auto-generated rows kept in lockstep with attendance charges.
type TransactionStore interface {
	// SetAutoIncome creates or updates THE auto-generated income
	// transaction for (student, activity, date).
	SetAutoIncome(ctx context.Context, studentID StudentID, activityID ActivityID, date Date, amount decimal.Decimal, description string) error

	// ClearAutoIncome deletes the auto-generated transaction, if any.
	ClearAutoIncome(ctx context.Context, studentID StudentID, activityID ActivityID, date Date) error

	Transactions(ctx context.Context, studentID StudentID, from, to Date) ([]Transaction, error)
}

// Store is the full persistence surface the API layer works against.
type Store interface {
	ActivityStore
	StudentStore
	EnrollmentStore
	AttendanceStore
	StaffStore
	JournalStore
	TransactionStore

	Close() error
}
