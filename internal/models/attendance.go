package models

import "time"

// AttendanceStatus represents the status stored on an attendance record.
type AttendanceStatus string

const (
	AttendanceStatusNotYet  AttendanceStatus = "not-yet"
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusNotYet, AttendanceStatusPresent, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

// Marked reports whether the status counts toward attendance math.
// Records still at "not-yet" are excluded from every rate denominator.
func (s AttendanceStatus) Marked() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// AttendanceRecord is one student's status for one course session day.
// At most one record exists per (course_id, student_id, date) triple.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail extends a record with display fields resolved at read time.
type AttendanceDetail struct {
	AttendanceRecord
	StudentName     *string `db:"student_name" json:"student_name,omitempty"`
	StudentUsername *string `db:"student_username" json:"student_username,omitempty"`
	StudentEmail    *string `db:"student_email" json:"student_email,omitempty"`
	CourseName      *string `db:"course_name" json:"course_name,omitempty"`
	MarkedByName    *string `db:"marked_by_name" json:"marked_by_name,omitempty"`
	MarkedByRole    *string `db:"marked_by_role" json:"marked_by_role,omitempty"`
}

// DisplayName prefers the student's full name over the login-style username.
func (d AttendanceDetail) DisplayName() string {
	if d.StudentName != nil && *d.StudentName != "" {
		return *d.StudentName
	}
	if d.StudentUsername != nil {
		return *d.StudentUsername
	}
	return ""
}

// AttendanceFilter scopes listing and export queries.
type AttendanceFilter struct {
	CourseID  string
	StudentID string
	MarkedBy  string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StatusSummary holds the status distribution for a filtered record set.
type StatusSummary struct {
	NotYet  int `json:"not_yet"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// MarkResult is returned by markAttendance: the freshly re-read records
// plus the status distribution over them.
type MarkResult struct {
	Records []AttendanceDetail `json:"records"`
	Summary StatusSummary      `json:"summary"`
}

// UpdateResult reports the outcome of a bulk update. Errors holds one
// human-readable string per failed id and is omitted when empty.
type UpdateResult struct {
	Updated    int                `json:"updated"`
	UpdatedIDs []string           `json:"updated_ids,omitempty"`
	Records    []AttendanceRecord `json:"records,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
}

// DeleteResult reports the outcome of a single-id delete.
type DeleteResult struct {
	Deleted bool              `json:"deleted"`
	Record  *AttendanceRecord `json:"record,omitempty"`
}

// BulkDeleteResult reports the outcome of a multi-id delete. Records
// failing a per-record check are skipped, never deleted.
type BulkDeleteResult struct {
	Deleted        int                `json:"deleted"`
	Total          int                `json:"total"`
	Skipped        int                `json:"skipped"`
	DeletedIDs     []string           `json:"deleted_ids"`
	DeletedRecords []AttendanceRecord `json:"deleted_records"`
	Errors         []string           `json:"errors,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
