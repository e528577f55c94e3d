package models

import (
	"strings"
	"time"
)

// Weekday identifies the day a recurring slot meets.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// Weekdays lists all days in calendar order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayIndex = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
	Sunday:    7,
}

// Index returns the 1-based calendar position of the day, 0 if unknown.
func (d Weekday) Index() int {
	return weekdayIndex[d]
}

// ParseWeekday normalises a day string into a Weekday, empty if unknown.
func ParseWeekday(raw string) Weekday {
	day := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := weekdayIndex[day]; !ok {
		return ""
	}
	return day
}

// ScheduleSlot is one weekly recurring meeting of a section-subject offering.
// Room is the conflict key for rooms; an empty room never conflicts.
// ProfessorID overrides the offering's default professor when set.
type ScheduleSlot struct {
	ID               string    `db:"id" json:"id"`
	SectionSubjectID string    `db:"section_subject_id" json:"section_subject_id"`
	Day              Weekday   `db:"day" json:"day"`
	StartMinute      int       `db:"start_minute" json:"start_minute"`
	EndMinute        int       `db:"end_minute" json:"end_minute"`
	Room             string    `db:"room" json:"room"`
	ProfessorID      *string   `db:"professor_id" json:"professor_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Range returns the slot's time interval.
func (s ScheduleSlot) Range() TimeRange {
	return TimeRange{Start: s.StartMinute, End: s.EndMinute}
}

// ScheduleSlotDetail joins a slot with its offering context so conflict
// resolution can identify the responsible section and professor sources.
type ScheduleSlotDetail struct {
	ScheduleSlot
	SectionID          string  `db:"section_id" json:"section_id"`
	SubjectID          string  `db:"subject_id" json:"subject_id"`
	DefaultProfessorID *string `db:"default_professor_id" json:"default_professor_id,omitempty"`
}
