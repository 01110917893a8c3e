package models

import "time"

// AttendanceStatus classifies a single attendance record.
type AttendanceStatus string

// Attendance statuses as stored by the attendance subsystem.
const (
	AttendancePresent AttendanceStatus = "presente"
	AttendanceAbsent  AttendanceStatus = "falta"
	AttendanceExcused AttendanceStatus = "justificativa"
	AttendanceLate    AttendanceStatus = "atraso"
	AttendanceMakeup  AttendanceStatus = "reposicao"
)

// CountsAsPresence reports whether the status contributes to frequency.
// Late arrivals still count; excused absences and makeups do not.
func (s AttendanceStatus) CountsAsPresence() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// AttendanceRecord is one (student, cohort, lesson date) attendance row.
// The engine only ever reads these.
type AttendanceRecord struct {
	StudentID  string           `db:"aluno_id" json:"aluno_id"`
	LessonDate time.Time        `db:"data" json:"data"`
	Status     AttendanceStatus `db:"status" json:"status"`
}

// StudentPresenceCount aggregates a student's presences within one
// module's delivered lessons.
type StudentPresenceCount struct {
	StudentID string `db:"aluno_id"`
	Presences int    `db:"presencas"`
}
