package models

import "time"

// StatsOptions tunes a statistics query. Threshold is the absent-rate
// percentage at or above which a student is flagged; zero means "use the
// configured default". From/To are clamped to the course window.
type StatsOptions struct {
	Threshold float64
	From      *time.Time
	To        *time.Time
}

// StudentAttendanceStats aggregates one student's records in a course.
type StudentAttendanceStats struct {
	StudentID      string           `json:"student_id"`
	Profile        *UserProfile     `json:"profile,omitempty"`
	TotalSessions  int              `json:"total_sessions"`
	MarkedCount    int              `json:"marked_count"`
	PresentCount   int              `json:"present_count"`
	AbsentCount    int              `json:"absent_count"`
	AttendanceRate float64          `json:"attendance_rate"`
	AbsentRate     float64          `json:"absent_rate"`
	LongestStreak  int              `json:"longest_absent_streak"`
	Alerts         AttendanceAlerts `json:"alerts"`
}

// AttendanceAlerts flags risk conditions on a student's stats.
type AttendanceAlerts struct {
	HighAbsence bool `json:"high_absence"`
}

// CourseAttendanceStats aggregates a whole course over the clamped window.
type CourseAttendanceStats struct {
	CourseID            string                   `json:"course_id"`
	From                time.Time                `json:"from"`
	To                  time.Time                `json:"to"`
	Threshold           float64                  `json:"threshold"`
	ClassAttendanceRate float64                  `json:"class_attendance_rate"`
	Students            []StudentAttendanceStats `json:"students"`
	StudentsAtRisk      []StudentAttendanceStats `json:"students_at_risk"`
}

// NotificationEntry is the per-student outcome of an absence-mail batch.
type NotificationEntry struct {
	StudentID    string `json:"student_id"`
	AbsenceCount int    `json:"absence_count"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NotificationResult summarises an absence-mail batch.
type NotificationResult struct {
	Total   int                 `json:"total"`
	Success int                 `json:"success"`
	Failed  int                 `json:"failed"`
	Results []NotificationEntry `json:"results"`
}
