package billing

// =============================================================================
// WORKING-DAY CALENDAR
// =============================================================================

// WorkingDaysInMonth counts Monday-Friday calendar days in the month
// containing the given date. No holiday calendar is applied at this
// layer: subscription tuition charges divide by the plain Mon-Fri count.
// Holiday exclusion is a separate adjustment used only by payroll day
// counting (see PayrollWorkingDays).
func WorkingDaysInMonth(d Date) int {
	start, end := MonthOf(d)
	count := 0
	for cur := start; cur.BeforeOrEqual(end); cur = cur.AddDays(1) {
		if cur.IsWorkday() {
			count++
		}
	}
	return count
}

// WorkdaysInMonth returns every Mon-Fri day of the month, in order.
func WorkdaysInMonth(d Date) []Date {
	start, end := MonthOf(d)
	var days []Date
	for cur := start; cur.BeforeOrEqual(end); cur = cur.AddDays(1) {
		if cur.IsWorkday() {
			days = append(days, cur)
		}
	}
	return days
}

// =============================================================================
// HOLIDAY CALENDAR - Center-specific non-working days
// =============================================================================

// Holiday is a center holiday excluded from payroll day counting.
type Holiday struct {
	ID        string
	Date      Date
	Name      string // e.g. "New Year", "Independence Day"
	Recurring bool   // true = same month/day every year
}

// HolidayCalendar provides holiday lookup.
type HolidayCalendar interface {
	IsHoliday(date Date) bool
	Holidays(year int) []Holiday
}

// NoHolidays is the no-op calendar used when holidays are not configured.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Date) bool       { return false }
func (NoHolidays) Holidays(int) []Holiday    { return nil }

// PayrollWorkingDays counts Mon-Fri days in the date's month, excluding
// holidays. This count feeds per-working-day manual staff rates; tuition
// charges never use it.
func PayrollWorkingDays(d Date, calendar HolidayCalendar) int {
	if calendar == nil {
		calendar = NoHolidays{}
	}
	count := 0
	for _, day := range WorkdaysInMonth(d) {
		if !calendar.IsHoliday(day) {
			count++
		}
	}
	return count
}
